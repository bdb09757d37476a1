package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
)

type tableCreator interface {
	CreateTable(ctx context.Context, options *aztables.CreateTableOptions) (aztables.CreateTableResponse, error)
}

// EnsureTable creates the named table when it does not exist yet.
func EnsureTable(ctx context.Context, connStr, name string) error {
	if name == "" {
		return errors.New("table name is required")
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return fmt.Errorf("table service: %w", err)
	}
	return ensureTable(ctx, svc.NewClient(name))
}

func ensureTable(ctx context.Context, c tableCreator) error {
	if _, err := c.CreateTable(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists) {
			return nil
		}
		return err
	}
	return nil
}
