package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sandeepkv93/optixflow/internal/model"
)

type Type string

const (
	TypeAdd         Type = "add"
	TypeSub         Type = "sub"
	TypeDone        Type = "done"
	TypeUndo        Type = "undo"
	TypeRemove      Type = "rm"
	TypeEstimate    Type = "est"
	TypeMove        Type = "move"
	TypeProject     Type = "project"
	TypeDropProject Type = "drop-project"
	TypeFilter      Type = "filter"
)

// DefaultEstimate is the duration new items get when none is given.
const DefaultEstimate = 30

type ErrorCode string

const (
	ErrCodeEmptyInput      ErrorCode = "empty_input"
	ErrCodeUnknownCommand  ErrorCode = "unknown_command"
	ErrCodeInvalidArgument ErrorCode = "invalid_argument"
	ErrCodeHandlerMissing  ErrorCode = "handler_missing"
)

type CommandError struct {
	Code    ErrorCode
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AddArgs creates a task: add <title> [!h|!m|!l] [!u] [~minutes] [#project].
type AddArgs struct {
	Title      string
	Importance model.Importance
	Urgent     bool
	Estimate   int
	// Project is empty when no #tag was given.
	Project string
}

// SubArgs creates a subtask under Target. Importance and urgency are only
// set when given.
type SubArgs struct {
	Target     string
	Title      string
	Importance model.Opt[model.Importance]
	Urgent     model.Opt[bool]
	Estimate   int
}

type DoneArgs struct {
	Target  string
	Cascade bool
}

type TargetArgs struct {
	Target string
}

type EstimateArgs struct {
	Target  string
	Minutes int
}

type MoveArgs struct {
	Target     string
	Importance model.Importance
	Urgent     bool
}

type ProjectArgs struct {
	Name  string
	Color string
}

// FilterArgs selects a project; an empty Project clears the filter.
type FilterArgs struct {
	Project string
}

type Command struct {
	Type     Type
	Raw      string
	Add      *AddArgs
	Sub      *SubArgs
	Done     *DoneArgs
	Target   *TargetArgs
	Estimate *EstimateArgs
	Move     *MoveArgs
	Project  *ProjectArgs
	Filter   *FilterArgs
}

func Parse(input string) (Command, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}
	if strings.HasPrefix(raw, "/") {
		raw = strings.TrimSpace(strings.TrimPrefix(raw, "/"))
	}
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}

	parts := strings.Fields(raw)
	head := strings.ToLower(parts[0])
	args := parts[1:]

	switch Type(head) {
	case TypeAdd:
		return parseAdd(input, args)
	case TypeSub:
		return parseSub(input, args)
	case TypeDone:
		return parseDone(input, args)
	case TypeUndo:
		return Command{Type: TypeUndo, Raw: input}, nil
	case TypeRemove:
		return parseTarget(input, TypeRemove, args)
	case TypeDropProject:
		return parseTarget(input, TypeDropProject, args)
	case TypeEstimate:
		return parseEstimate(input, args)
	case TypeMove:
		return parseMove(input, args)
	case TypeProject:
		return parseProject(input, args)
	case TypeFilter:
		return parseFilter(input, args)
	default:
		return Command{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unsupported command: %s", head)}
	}
}

func invalid(format string, a ...any) error {
	return &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf(format, a...)}
}

// flags collects the !importance, !u, ~minutes and #project modifiers and
// returns the remaining words.
type flags struct {
	importance model.Opt[model.Importance]
	urgent     model.Opt[bool]
	estimate   int
	project    string
	words      []string
}

func parseFlags(args []string) (flags, error) {
	var f flags
	for _, arg := range args {
		switch {
		case len(arg) > 1 && arg[0] == '!':
			v := strings.ToLower(arg[1:])
			if v == "u" || v == "urgent" {
				f.urgent = model.Some(true)
				continue
			}
			if v == "n" || v == "normal" {
				f.urgent = model.Some(false)
				continue
			}
			imp, err := model.ParseImportance(v)
			if err != nil {
				return flags{}, invalid("unknown modifier %s", arg)
			}
			f.importance = model.Some(imp)
		case len(arg) > 1 && arg[0] == '~':
			n, err := strconv.Atoi(strings.TrimSuffix(arg[1:], "m"))
			if err != nil || n <= 0 {
				return flags{}, invalid("invalid estimate %s", arg)
			}
			f.estimate = n
		case len(arg) > 1 && arg[0] == '#':
			f.project = arg[1:]
		default:
			f.words = append(f.words, arg)
		}
	}
	return f, nil
}

func estimateOrDefault(n int) int {
	if n == 0 {
		return DefaultEstimate
	}
	return model.ClampEstimate(n)
}

func parseAdd(raw string, args []string) (Command, error) {
	f, err := parseFlags(args)
	if err != nil {
		return Command{}, err
	}
	title := strings.TrimSpace(strings.Join(f.words, " "))
	if title == "" {
		return Command{}, invalid("add requires a title")
	}
	return Command{Type: TypeAdd, Raw: raw, Add: &AddArgs{
		Title:      title,
		Importance: f.importance.Or(model.ImportanceMid),
		Urgent:     f.urgent.Or(false),
		Estimate:   estimateOrDefault(f.estimate),
		Project:    f.project,
	}}, nil
}

func parseSub(raw string, args []string) (Command, error) {
	if len(args) < 2 {
		return Command{}, invalid("sub requires a task and a title")
	}
	f, err := parseFlags(args[1:])
	if err != nil {
		return Command{}, err
	}
	if f.project != "" {
		return Command{}, invalid("subtasks belong to their task's project")
	}
	title := strings.TrimSpace(strings.Join(f.words, " "))
	if title == "" {
		return Command{}, invalid("sub requires a title")
	}
	return Command{Type: TypeSub, Raw: raw, Sub: &SubArgs{
		Target:     args[0],
		Title:      title,
		Importance: f.importance,
		Urgent:     f.urgent,
		Estimate:   estimateOrDefault(f.estimate),
	}}, nil
}

func parseDone(raw string, args []string) (Command, error) {
	if len(args) == 0 {
		return Command{}, invalid("done requires a target")
	}
	cascade := false
	for _, arg := range args[1:] {
		switch strings.ToLower(arg) {
		case "all", "cascade", "--all":
			cascade = true
		default:
			return Command{}, invalid("unexpected argument %s", arg)
		}
	}
	return Command{Type: TypeDone, Raw: raw, Done: &DoneArgs{Target: args[0], Cascade: cascade}}, nil
}

func parseTarget(raw string, typ Type, args []string) (Command, error) {
	target := strings.TrimSpace(strings.Join(args, " "))
	if target == "" {
		return Command{}, invalid("%s requires a target", typ)
	}
	return Command{Type: typ, Raw: raw, Target: &TargetArgs{Target: target}}, nil
}

func parseEstimate(raw string, args []string) (Command, error) {
	if len(args) != 2 {
		return Command{}, invalid("est requires a target and minutes")
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(args[1], "~"), "m"))
	if err != nil || n <= 0 {
		return Command{}, invalid("invalid minutes %s", args[1])
	}
	return Command{Type: TypeEstimate, Raw: raw, Estimate: &EstimateArgs{Target: args[0], Minutes: model.ClampEstimate(n)}}, nil
}

func parseMove(raw string, args []string) (Command, error) {
	if len(args) < 2 {
		return Command{}, invalid("move requires a target and a quadrant")
	}
	f, err := parseFlags(args[1:])
	if err != nil {
		return Command{}, err
	}
	if len(f.words) > 0 || f.project != "" || f.estimate != 0 {
		return Command{}, invalid("move only accepts !importance and !u/!n")
	}
	if !f.importance.Set {
		return Command{}, invalid("move requires an importance")
	}
	return Command{Type: TypeMove, Raw: raw, Move: &MoveArgs{
		Target:     args[0],
		Importance: f.importance.Value,
		Urgent:     f.urgent.Or(false),
	}}, nil
}

func parseProject(raw string, args []string) (Command, error) {
	color := ""
	if n := len(args); n > 0 && strings.HasPrefix(args[n-1], "#") {
		color = args[n-1]
		args = args[:n-1]
	}
	name := strings.TrimSpace(strings.Join(args, " "))
	if name == "" {
		return Command{}, invalid("project requires a name")
	}
	return Command{Type: TypeProject, Raw: raw, Project: &ProjectArgs{Name: name, Color: color}}, nil
}

func parseFilter(raw string, args []string) (Command, error) {
	name := strings.TrimSpace(strings.Join(args, " "))
	if strings.EqualFold(name, "all") {
		name = ""
	}
	return Command{Type: TypeFilter, Raw: raw, Filter: &FilterArgs{Project: name}}, nil
}
