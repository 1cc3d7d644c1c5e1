package repository

import "errors"

var ErrProductNotFound = errors.New("product not found")
var ErrInsufficientStock = errors.New("insufficient stock")

// ErrAtomicUnavailable means the store has no usable conditional decrement in this deployment.
var ErrAtomicUnavailable = errors.New("atomic stock decrement unavailable")

// ErrCheckoutInProgress means another checkout already holds the session's lock.
var ErrCheckoutInProgress = errors.New("checkout already in progress")
