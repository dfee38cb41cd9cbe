package command

import (
	"fmt"
)

// requiredArgs lists arguments a verb cannot act without. Kept deliberately
// small: downstream rules evaluation owns full verb semantics, this lint
// only catches the malformations generated text produces most often.
var requiredArgs = map[string][]string{
	"ATTACK": {"target", "tool"},
	"USE":    {"tool"},
	"GIVE":   {"target", "item"},
}

// Lint runs local post-parse checks over a command list.
func Lint(commands []CommandNode) []ValidationIssue {
	var issues []ValidationIssue
	for i := range commands {
		node := &commands[i]
		for _, arg := range node.Args {
			if arg.Name == "" {
				issues = append(issues, ValidationIssue{
					Code:    CodePositionalArgument,
					Message: fmt.Sprintf("%s takes named arguments only, got positional value %s", node.Verb, arg.Value.String()),
					Line:    node.Line,
				})
			}
		}
		for _, required := range requiredArgs[node.Verb] {
			if _, ok := node.Arg(required); !ok {
				issues = append(issues, ValidationIssue{
					Code:    CodeMissingRequiredArg,
					Message: fmt.Sprintf("%s requires argument %q", node.Verb, required),
					Line:    node.Line,
				})
			}
		}
		if node.Subject == "" || node.Verb == "" {
			issues = append(issues, ValidationIssue{
				Code:    CodeMalformedLine,
				Message: "command is missing a subject or verb",
				Line:    node.Line,
			})
		}
	}
	return issues
}
