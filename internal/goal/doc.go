// Package goal implements the host commands that run scripts: execute,
// console, shell and version.
//
// Every goal builds a fresh namespace under the runner's root namespace,
// assembles the script bindings and runs under a process-exit guard, so a
// script calling os.exit ends the goal rather than the process.
package goal
