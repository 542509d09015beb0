package dataset

import "errors"

var (
	// ErrFileNotFound indicates the input CSV path does not exist.
	ErrFileNotFound = errors.New("file not found")
	// ErrEmptyDataset indicates zero rows remain, either originally or after filtering.
	ErrEmptyDataset = errors.New("no data available")
	// ErrMissingRequiredColumns indicates no usable timestamp or PM2.5/PM10 mapping.
	ErrMissingRequiredColumns = errors.New("missing required columns")
)
