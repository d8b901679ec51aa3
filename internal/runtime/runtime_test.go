package runtime

import (
	"errors"
	"reflect"
	"testing"
)

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()

	rt, err := r.Get("python")
	if err != nil {
		t.Fatalf("Get(python) error: %v", err)
	}
	if rt.Name() != "python" {
		t.Errorf("Name() = %q, want %q", rt.Name(), "python")
	}

	if _, err := r.Get("ruby"); !errors.Is(err, ErrUnsupportedLanguage) {
		t.Errorf("Get(ruby) error = %v, want ErrUnsupportedLanguage", err)
	}
}

func TestRegistry_Supported(t *testing.T) {
	r := NewRegistry()

	for _, lang := range []string{"javascript", "python"} {
		if !r.Supported(lang) {
			t.Errorf("Supported(%q) = false, want true", lang)
		}
	}
	if r.Supported("ruby") {
		t.Error("Supported(ruby) = true, want false")
	}
}

func TestRegistry_Languages(t *testing.T) {
	r := NewRegistry()

	got := r.Languages()
	want := []string{"javascript", "python"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Languages() = %v, want %v", got, want)
	}
}

func TestPythonRuntime_Command(t *testing.T) {
	p := &PythonRuntime{}
	cmd := p.Command("/tmp/abc.py")
	if cmd[0] != "python3" || cmd[len(cmd)-1] != "/tmp/abc.py" {
		t.Errorf("Command() = %v, want python3 ... /tmp/abc.py", cmd)
	}
	if p.FileExtension() != ".py" {
		t.Errorf("FileExtension() = %q, want %q", p.FileExtension(), ".py")
	}
}

func TestJavaScriptRuntime_Command(t *testing.T) {
	j := &JavaScriptRuntime{}
	cmd := j.Command("/tmp/abc.js")
	if cmd[0] != "node" || cmd[len(cmd)-1] != "/tmp/abc.js" {
		t.Errorf("Command() = %v, want node /tmp/abc.js", cmd)
	}
	if j.FileExtension() != ".js" {
		t.Errorf("FileExtension() = %q, want %q", j.FileExtension(), ".js")
	}
}
