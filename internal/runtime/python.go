package runtime

// PythonRuntime executes Python code with the host python3 interpreter.
type PythonRuntime struct{}

func (p *PythonRuntime) Name() string { return "python" }

func (p *PythonRuntime) FileExtension() string { return ".py" }

func (p *PythonRuntime) Command(codePath string) []string {
	return []string{
		"python3",
		"-u", // Unbuffered output
		codePath,
	}
}
