package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
)

// classifySQSError maps SDK errors onto the package's sentinel errors so
// callers can use errors.Is without importing the SDK. The provider message
// is kept in the chain.
func classifySQSError(err error, operation string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrOperationTimeout, operation)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s", ErrOperationCanceled, operation)
	}

	var missing *types.QueueDoesNotExist
	if errors.As(err, &missing) {
		return fmt.Errorf("%w: %s: %v", ErrQueueNotFound, operation, err)
	}
	var badReceipt *types.ReceiptHandleIsInvalid
	if errors.As(err, &badReceipt) {
		return fmt.Errorf("%w: %s: %v", ErrInvalidReceipt, operation, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AWS.SimpleQueueService.NonExistentQueue", "QueueDoesNotExist":
			return fmt.Errorf("%w: %s: %s", ErrQueueNotFound, operation, apiErr.ErrorMessage())
		case "AccessDenied", "AccessDeniedException", "InvalidClientTokenId", "SignatureDoesNotMatch":
			return fmt.Errorf("%w: %s: %s", ErrAccessDenied, operation, apiErr.ErrorMessage())
		case "ServiceUnavailable", "RequestThrottled", "ThrottlingException", "InternalError":
			return fmt.Errorf("%w: %s: %s", ErrUnavailable, operation, apiErr.ErrorMessage())
		case "ReceiptHandleIsInvalid":
			return fmt.Errorf("%w: %s: %s", ErrInvalidReceipt, operation, apiErr.ErrorMessage())
		default:
			return fmt.Errorf("%s failed (code: %s): %w", operation, apiErr.ErrorCode(), err)
		}
	}

	return fmt.Errorf("%s failed: %w", operation, err)
}
