// Package permission classifies and gates shell command execution for the
// terminal-command tool. It has no human-in-the-loop channel: the editor
// link is a one-way event stream, so there is no "ask the user" round
// trip here the way a chat UI would need. Instead AgentPermissions is a
// static policy evaluated synchronously against a parsed BashCommand.
//
// # Permission actions
//
//   - Allow: the command proceeds
//   - Deny: the command is rejected with a RejectedError
//   - Ask: proceeds unless the command is independently classified
//     dangerous by bash_parser.go, in which case it is rejected —
//     see Evaluate
//
// # Bash command parsing
//
// ParseBashCommand uses mvdan.cc/sh's shell parser to extract a
// structured BashCommand{Name, Subcommand, Args} from a raw command
// line, including through pipelines and subshells.
//
// # Pattern matching
//
// Bash permissions support hierarchical wildcard patterns:
//   - "git commit *" matches git commit with any arguments
//   - "git *" matches any git subcommand
//   - "git" matches the bare command with no arguments
//   - "*" matches anything
//
// Folder-path permissions (PermExternalDir) use real doublestar globs
// via MatchFolderPath instead, since paths are filesystem globs rather
// than space-separated command tokens.
package permission
