package errors

// Sentinel errors shared across the pipeline.
var (
	ErrInvalidBatchSize    = NewStd("batch size must be at least 1")
	ErrInvalidOverlap      = NewStd("overlap must satisfy 0 <= overlap < window length")
	ErrMalformedKey        = NewStd("malformed time range key")
	ErrResultCountMismatch = NewStd("model returned a different number of outputs than inputs")
	ErrShortWindow         = NewStd("audio stream ended before the final window")
	ErrUnsupportedFormat   = NewStd("unsupported audio format")
	ErrAnalysisCanceled    = NewStd("analysis canceled")
)

// IsCategory reports whether any EnhancedError in err's chain, including
// joined errors, has the given category.
func IsCategory(err error, category ErrorCategory) bool {
	for err != nil {
		if ee, ok := err.(*EnhancedError); ok && ee.Category == category {
			return true
		}
		if multi, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range multi.Unwrap() {
				if IsCategory(e, category) {
					return true
				}
			}
			return false
		}
		err = Unwrap(err)
	}
	return false
}

// ConfigurationError builds an error for invalid run parameters.
func ConfigurationError(component string, err error) *EnhancedError {
	return New(err).Component(component).Category(CategoryConfiguration).Build()
}

// AudioReadError builds an error for a corrupt or unreadable audio source.
func AudioReadError(component, path string, err error) *EnhancedError {
	return New(err).Component(component).Category(CategoryAudioRead).FileContext(path).Build()
}

// InferenceError builds an error for a failed model invocation.
func InferenceError(component string, err error) *EnhancedError {
	return New(err).Component(component).Category(CategoryInference).Build()
}

// FormatError builds an error for a failed output serialization.
func FormatError(component, path string, err error) *EnhancedError {
	return New(err).Component(component).Category(CategoryOutputFormat).FileContext(path).Build()
}

func IsConfigurationError(err error) bool { return IsCategory(err, CategoryConfiguration) }
func IsAudioReadError(err error) bool     { return IsCategory(err, CategoryAudioRead) }
func IsInferenceError(err error) bool     { return IsCategory(err, CategoryInference) }
func IsFormatError(err error) bool        { return IsCategory(err, CategoryOutputFormat) }
