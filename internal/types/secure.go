package types

const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"` + redactedPlaceholder + `"`)

// SecretString holds a credential loaded from configuration. It prints and
// marshals as a placeholder so it never ends up in logs or config dumps.
// Call Unmask to get the raw value at the point of use.
type SecretString string

// String implements fmt.Stringer with the placeholder.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON encodes the placeholder instead of the value.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the raw value.
func (s SecretString) Unmask() string {
	return string(s)
}

// Empty reports whether no value was configured.
func (s SecretString) Empty() bool {
	return s == ""
}
