package executor

// DemoSDL is the schema served when no upstream is configured.
const DemoSDL = `
schema {
	query: Query
}

type Query {
	hello(name: String): String!
	echo(message: String!): String!
}
`

type demoResolver struct{}

func (demoResolver) Hello(args struct{ Name *string }) string {
	if args.Name == nil || *args.Name == "" {
		return "Hello, world!"
	}
	return "Hello, " + *args.Name + "!"
}

func (demoResolver) Echo(args struct{ Message string }) string { return args.Message }

// NewDemo returns an executor for DemoSDL.
func NewDemo() (*Schema, error) { return NewSchema(DemoSDL, &demoResolver{}) }
