// Package command defines the capability contract the agent loop dispatches
// through, and the Registry that catalogs those capabilities by name.
//
// A Command describes itself (name, description, parameter schema), validates
// a set of arguments against that schema, and executes against a read-only
// view of the running session. The loop and the registry never depend on the
// identity of a command, only on this contract.
//
// # Defining commands
//
// Most commands are built with Func, which pairs a Descriptor with a Handler
// and derives validation from the parameter schema:
//
//	echo := &command.Func{
//	    Descriptor: command.Descriptor{
//	        Name:        "echo",
//	        Description: "Repeat the given text back.",
//	        Params: []command.Param{
//	            {Name: "text", Type: command.TypeString, Required: true},
//	        },
//	    },
//	    Handler: func(ctx context.Context, args command.Args, env command.Env) (command.Result, error) {
//	        return command.Success(args.StringOr("text", "")), nil
//	    },
//	}
//
// # Registration
//
// Commands are registered once at startup and the registry is then sealed:
//
//	reg := command.NewRegistry()
//	reg.MustRegister(echo)
//	reg.Seal()
//
// A sealed registry is read-only and can be shared across sessions.
package command
