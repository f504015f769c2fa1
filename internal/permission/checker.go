package permission

import "fmt"

// Evaluate decides whether a bash invocation may proceed under perms,
// without any human-in-the-loop round trip: dangerous commands are denied
// unless an explicit allow pattern covers them, everything else proceeds.
// There is no interactive "ask" channel in this core — the editor UI is a
// one-way event stream (§6) — so ActionAsk is treated as ActionDeny for
// commands classified dangerous and ActionAllow otherwise.
func Evaluate(perms AgentPermissions, cmd BashCommand) error {
	action := MatchBashPermission(cmd, perms.Bash)
	dangerous := IsDangerousBashCommand(cmd)

	switch action {
	case ActionDeny:
		return &RejectedError{Type: PermBash, Message: fmt.Sprintf("command denied by policy: %s", cmd.Name)}
	case ActionAllow:
		return nil
	default: // ActionAsk
		if dangerous {
			return &RejectedError{Type: PermBash, Message: fmt.Sprintf("dangerous command requires an explicit allow pattern: %s", cmd.Name)}
		}
		return nil
	}
}
