package recording

import "testing"

func TestFileName(t *testing.T) {
	testCases := []struct {
		title    string
		format   Format
		expected string
	}{
		{title: "Late Night Dub", format: FormatOgg, expected: "late_night_dub.ogg"},
		{title: "  ***  ", format: FormatOgg, expected: "live_music.ogg"},
		{title: "", format: FormatWAV, expected: "live_music.wav"},
		{title: "Bossa/Nova -- 120 BPM!", format: FormatWAV, expected: "bossa_nova_120_bpm.wav"},
		{title: "../../etc/passwd", format: FormatOgg, expected: "etc_passwd.ogg"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.title, func(t *testing.T) {
			if got := FileName(testCase.title, testCase.format); got != testCase.expected {
				t.Fatalf("expected %q, got %q", testCase.expected, got)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if format, err := ParseFormat(""); err != nil || format != FormatOgg {
		t.Fatalf("expected empty format to default to ogg, got %q, %v", format, err)
	}
	if _, err := ParseFormat("mp3"); err == nil {
		t.Fatalf("expected mp3 to be rejected")
	}
}
