package core

// Environment selects runtime behaviour that differs between a developer
// laptop and a deployed assistant, currently log formatting.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

func (e Environment) String() string {
	return string(e)
}

func (e Environment) IsProduction() bool {
	return e == Production
}

// ParseEnvironment maps the APP_ENV value onto a known environment.
// Anything unrecognised runs as development, which keeps logs readable
// when the variable is mistyped or unset.
func ParseEnvironment(v string) Environment {
	switch Environment(v) {
	case Production, Staging, Testing:
		return Environment(v)
	default:
		return Development
	}
}
