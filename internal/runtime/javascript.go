package runtime

// JavaScriptRuntime executes JavaScript code with the host Node.js interpreter.
type JavaScriptRuntime struct{}

func (j *JavaScriptRuntime) Name() string { return "javascript" }

func (j *JavaScriptRuntime) FileExtension() string { return ".js" }

func (j *JavaScriptRuntime) Command(codePath string) []string {
	return []string{"node", codePath}
}
