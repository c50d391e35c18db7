package capture

import "testing"

func TestParseStackTrace(t *testing.T) {
	t.Run("v8_frames_with_and_without_function", func(t *testing.T) {
		raw := "TypeError: x is not a function\n" +
			"    at handleClick (https://app.local/main.js:42:13)\n" +
			"    at https://app.local/vendor.js:7:2\n"
		frames := ParseStackTrace(raw)
		if len(frames) != 2 {
			t.Fatalf("ParseStackTrace() len = %d; want 2", len(frames))
		}
		if frames[0].FunctionName != "handleClick" || frames[0].FileName != "https://app.local/main.js" {
			t.Fatalf("frame 0 = %+v", frames[0])
		}
		if frames[0].LineNumber != 42 || frames[0].ColumnNumber != 13 {
			t.Fatalf("frame 0 position = %d:%d; want 42:13", frames[0].LineNumber, frames[0].ColumnNumber)
		}
		if frames[1].FunctionName != "" || frames[1].LineNumber != 7 {
			t.Fatalf("frame 1 = %+v", frames[1])
		}
	})

	t.Run("gecko_frames", func(t *testing.T) {
		frames := ParseStackTrace("onLoad@https://app.local/init.js:3:1\n@https://app.local/init.js:9:20")
		if len(frames) != 2 {
			t.Fatalf("ParseStackTrace() len = %d; want 2", len(frames))
		}
		if frames[0].FunctionName != "onLoad" || frames[1].FunctionName != "" {
			t.Fatalf("frames = %+v", frames)
		}
	})

	t.Run("unparseable_lines_are_dropped", func(t *testing.T) {
		raw := "Error: boom\nsomething unstructured\n    at ok (file.js:1:1)"
		frames := ParseStackTrace(raw)
		if len(frames) != 1 {
			t.Fatalf("ParseStackTrace() len = %d; want 1", len(frames))
		}
	})

	t.Run("empty_input", func(t *testing.T) {
		if frames := ParseStackTrace(""); frames != nil {
			t.Fatalf("ParseStackTrace(\"\") = %v; want nil", frames)
		}
	})
}
