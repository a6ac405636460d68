// Package executor defines the execution side of the gateway: once a document
// provider has produced query text, an Executor runs it.
//
// Two implementations exist. Schema executes against an in-process schema
// built with graph-gophers/graphql-go; the upstream package forwards the text to
// another GraphQL server. Neither sees APQ extensions: by the time Execute is
// called the persisted query has been resolved to plain text.
package executor
