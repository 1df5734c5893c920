package commands

import "fmt"

type Result struct {
	Message string
}

type Handlers struct {
	Add         func(AddArgs) (Result, error)
	Sub         func(SubArgs) (Result, error)
	Done        func(DoneArgs) (Result, error)
	Undo        func() (Result, error)
	Remove      func(TargetArgs) (Result, error)
	Estimate    func(EstimateArgs) (Result, error)
	Move        func(MoveArgs) (Result, error)
	Project     func(ProjectArgs) (Result, error)
	DropProject func(TargetArgs) (Result, error)
	Filter      func(FilterArgs) (Result, error)
}

func missing(t Type) error {
	return &CommandError{Code: ErrCodeHandlerMissing, Message: fmt.Sprintf("%s handler not configured", t)}
}

func Execute(cmd Command, handlers Handlers) (Result, error) {
	switch cmd.Type {
	case TypeAdd:
		if handlers.Add == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Add(*cmd.Add)
	case TypeSub:
		if handlers.Sub == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Sub(*cmd.Sub)
	case TypeDone:
		if handlers.Done == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Done(*cmd.Done)
	case TypeUndo:
		if handlers.Undo == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Undo()
	case TypeRemove:
		if handlers.Remove == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Remove(*cmd.Target)
	case TypeEstimate:
		if handlers.Estimate == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Estimate(*cmd.Estimate)
	case TypeMove:
		if handlers.Move == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Move(*cmd.Move)
	case TypeProject:
		if handlers.Project == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Project(*cmd.Project)
	case TypeDropProject:
		if handlers.DropProject == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.DropProject(*cmd.Target)
	case TypeFilter:
		if handlers.Filter == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Filter(*cmd.Filter)
	default:
		return Result{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unknown command type: %s", cmd.Type)}
	}
}
