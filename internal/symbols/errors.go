package symbols

import "github.com/pkg/errors"

var errEmptyListing = errors.New("exchange listing is empty")
