package env

type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
	Test        Environment = "test"
)

func (e Environment) IsProduction() bool { return e == Production }
