package domain

import (
	"context"
	"errors"
)

type Service interface {
	Get(ctx context.Context, key string) (Setting, error)
	Set(ctx context.Context, key, value string) (Setting, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]Setting, error)
	// Lookup reports the value of key for the organization in ctx, or false
	// when the organization has not overridden it.
	Lookup(ctx context.Context, key string) (string, bool, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrUnknownKey          = errors.New("unknown_setting_key")
	ErrInvalidValue        = errors.New("invalid_setting_value")
	ErrNotFound            = errors.New("setting_not_found")
)
