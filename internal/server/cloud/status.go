package cloud

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	"github.com/aws/smithy-go"
	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/dmitrijs2005/gophbucket/internal/common"
)

// Meta is what the provider reported about one call.
type Meta struct {
	Status    int
	RequestID string
}

// MetaOf extracts the HTTP status and request id recorded by the SDK.
// Status is 0 when no raw response was captured (e.g. stubbed clients).
func MetaOf(md middleware.Metadata) Meta {
	var m Meta
	if id, ok := awsmiddleware.GetRequestIDMetadata(md); ok {
		m.RequestID = id
	}
	if resp, ok := awsmiddleware.GetRawResponse(md).(*smithyhttp.Response); ok && resp != nil && resp.Response != nil {
		m.Status = resp.StatusCode
	}
	return m
}

// Check turns one provider call result into the pipeline's error taxonomy.
// A call succeeds only when there is no error and the reported status is one
// of accepted (200 when none given); an unknown status (0) with no error is
// taken as success. Deadline overruns are rejections like any other.
func Check(err error, m Meta, accepted ...int) error {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: call timed out: %w", common.ErrProviderRejected, err)
		}
		return fmt.Errorf("%w: %w", common.ErrProviderRejected, err)
	}
	if len(accepted) == 0 {
		accepted = []int{http.StatusOK}
	}
	if m.Status != 0 && !slices.Contains(accepted, m.Status) {
		return fmt.Errorf("%w: status %d (request %s)", common.ErrProviderRejected, m.Status, m.RequestID)
	}
	return nil
}

// lagCodes are the error codes S3 returns while a new bucket is still
// propagating through its control plane.
var lagCodes = []string{"NoSuchBucket", "NotFound", "OperationAborted"}

// IsPropagationLag reports whether err means the resource is not visible
// yet, as opposed to a request the provider will never accept.
func IsPropagationLag(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && slices.Contains(lagCodes, apiErr.ErrorCode()) {
		return true
	}
	var respErr *smithyhttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}

// WithTimeout bounds a single provider call. A non-positive d leaves ctx as is.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
