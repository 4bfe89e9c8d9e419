package pipeline

import "errors"

// ErrPipeline wraps every failure of the pipeline driver itself, as opposed
// to errors returned by the receptive field.
var ErrPipeline = errors.New("pipeline error")
