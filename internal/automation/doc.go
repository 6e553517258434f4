// Package automation provides the build-automation object handed to scripts
// as the "ant" binding.
//
// A Builder owns a Project and runs small file-system tasks relative to the
// project's base directory. Every task reports its progress to the
// project's build listeners; the first listener is a DefaultLogger that
// prints "[task] message" lines.
//
//	b := automation.NewBuilder(automation.WithBaseDir("/src/app"))
//	_ = b.Mkdir("target/classes")
//	_ = b.Echo("prepared")
package automation
