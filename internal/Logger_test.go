package internal

import "testing"

func TestParseLogLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":    Debug,
		"info":     Info,
		"warning":  Warning,
		"warn":     Warning,
		"error":    Error,
		"":         Info,
		"verbose":  Info,
		"CRITICAL": Info,
	}
	for input, want := range cases {
		if got := ParseLogLevel(input); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestLevelEnabledThresholds(t *testing.T) {
	// At the info threshold, debug is suppressed and everything else passes.
	if LevelEnabled(Info, Debug) {
		t.Error("LevelEnabled(info, debug) = true, want suppressed")
	}
	for _, level := range []LogLevel{Info, Warning, Error} {
		if !LevelEnabled(Info, level) {
			t.Errorf("LevelEnabled(info, %v) = false, want emitted", level)
		}
	}

	// At the error threshold, only errors pass.
	for _, level := range []LogLevel{Debug, Info, Warning} {
		if LevelEnabled(Error, level) {
			t.Errorf("LevelEnabled(error, %v) = true, want suppressed", level)
		}
	}
	if !LevelEnabled(Error, Error) {
		t.Error("LevelEnabled(error, error) = false, want emitted")
	}

	// At the debug threshold, everything passes.
	for _, level := range []LogLevel{Debug, Info, Warning, Error} {
		if !LevelEnabled(Debug, level) {
			t.Errorf("LevelEnabled(debug, %v) = false, want emitted", level)
		}
	}
}

func TestPushLogDeliversFieldsToHandler(t *testing.T) {
	orig := LogHandler
	t.Cleanup(func() { LogHandler = orig })

	var got LogStruct
	LogHandler = func(sender interface{}, entry LogStruct) {
		got = entry
	}

	PushLogWarning(nil, "disk almost full", "path", "/games", "free", 42)
	if got.LogLevel != Warning || got.Message != "disk almost full" {
		t.Errorf("handler received %+v", got)
	}
	if len(got.Fields) != 4 || got.Fields[0] != "path" || got.Fields[3] != 42 {
		t.Errorf("handler fields = %v, want [path /games free 42]", got.Fields)
	}
}
