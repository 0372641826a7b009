package providers

// Factory is a function that creates a driver from a spec.
type Factory func(spec Spec) (Driver, error)

var driverFactories = make(map[string]Factory)

// RegisterDriverFactory registers a factory function for a driver type.
// Driver subpackages call this from init.
func RegisterDriverFactory(driverType string, factory Factory) {
	driverFactories[driverType] = factory
}

// Spec holds the configuration needed to create a driver instance.
type Spec struct {
	// ID is the provider name the driver reports in transcripts and metrics.
	ID string

	// Type selects the registered factory ("openai", "anthropic", "mock").
	Type string

	Model   string
	BaseURL string

	// APIKeyEnv optionally names the environment variable holding the API
	// key. Empty means the driver's conventional variable.
	APIKeyEnv string

	Defaults Defaults
}

// NewFromSpec creates a driver implementation from a spec.
// Returns an error if the driver type is unsupported.
func NewFromSpec(spec Spec) (Driver, error) {
	// Use default base URLs if not specified
	if spec.BaseURL == "" {
		switch spec.Type {
		case "openai":
			spec.BaseURL = "https://api.openai.com/v1"
		case "anthropic":
			spec.BaseURL = "https://api.anthropic.com"
		case "mock":
			// No base URL needed for mock driver
		}
	}

	factory, exists := driverFactories[spec.Type]
	if !exists {
		return nil, &UnsupportedDriverError{DriverType: spec.Type}
	}

	return factory(spec)
}

// DriverTypes returns the registered driver type names.
func DriverTypes() []string {
	names := make([]string, 0, len(driverFactories))
	for name := range driverFactories {
		names = append(names, name)
	}
	return names
}

// UnsupportedDriverError is returned when a driver type is not recognized.
type UnsupportedDriverError struct {
	DriverType string
}

func (e *UnsupportedDriverError) Error() string {
	return "unsupported driver type: " + e.DriverType
}
