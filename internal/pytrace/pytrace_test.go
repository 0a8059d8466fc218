package pytrace

import "testing"

const nameErrorOutput = `Traceback (most recent call last):
  File "/tmp/ws/run.py", line 3, in <module>
    from app.main import app
  File "/tmp/ws/app/main.py", line 4, in <module>
    from app.routes import router
  File "/tmp/ws/app/routes.py", line 12, in <module>
    def list_items(db: Session = Depends(get_db)):
NameError: name 'Session' is not defined
`

func TestParseTraceback(t *testing.T) {
	d := Parse(nameErrorOutput)
	if d == nil {
		t.Fatal("Parse returned nil")
	}
	if d.ErrType != "NameError" {
		t.Errorf("ErrType = %q, want NameError", d.ErrType)
	}
	if d.Message != "name 'Session' is not defined" {
		t.Errorf("Message = %q", d.Message)
	}
	if len(d.Frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(d.Frames))
	}
	last := d.Frames[len(d.Frames)-1]
	if last.Path != "/tmp/ws/app/routes.py" || last.Line != 12 {
		t.Errorf("innermost frame = %+v", last)
	}
}

func TestParseNoTraceback(t *testing.T) {
	for _, output := range []string{
		"",
		"3 passed in 0.41s",
		"INFO: Uvicorn running on http://127.0.0.1:8000",
	} {
		if d := Parse(output); d != nil {
			t.Errorf("Parse(%q) = %+v, want nil", output, d)
		}
	}
}

func TestParseUsesLastError(t *testing.T) {
	output := `ValueError: first
Traceback (most recent call last):
  File "/ws/app/main.py", line 2, in <module>
TypeError: second
`
	d := Parse(output)
	if d == nil {
		t.Fatal("Parse returned nil")
	}
	if d.ErrType != "TypeError" || d.Message != "second" {
		t.Errorf("got %s: %s, want TypeError: second", d.ErrType, d.Message)
	}
}

func TestImplicateInnermostBundleFrame(t *testing.T) {
	d := Parse(nameErrorOutput)
	bundle := []string{"app/main.py", "app/routes.py", "requirements.txt"}

	path, line := d.Implicate(bundle)
	if path != "app/routes.py" {
		t.Errorf("implicated %q, want app/routes.py", path)
	}
	if line != 12 {
		t.Errorf("line = %d, want 12", line)
	}
}

func TestImplicateSkipsForeignFrames(t *testing.T) {
	output := `Traceback (most recent call last):
  File "/usr/lib/python3.11/site-packages/fastapi/routing.py", line 273, in app
  File "/tmp/ws/app/main.py", line 9, in read_root
ZeroDivisionError: division by zero
`
	d := Parse(output)
	path, line := d.Implicate([]string{"app/main.py"})
	if path != "app/main.py" || line != 9 {
		t.Errorf("got %q:%d, want app/main.py:9", path, line)
	}
}

func TestImplicateNoMatch(t *testing.T) {
	output := `Traceback (most recent call last):
  File "<frozen importlib._bootstrap>", line 1204, in _gcd_import
ModuleNotFoundError: No module named 'fastapi'
`
	d := Parse(output)
	path, line := d.Implicate([]string{"app/main.py"})
	if path != "" || line != 0 {
		t.Errorf("got %q:%d, want no match", path, line)
	}
}

func TestSummary(t *testing.T) {
	d := &Diagnosis{ErrType: "NameError", Message: "name 'Session' is not defined"}
	want := "NameError: name 'Session' is not defined"
	if got := d.Summary(); got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}
}
