package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// Names accepted for the audio source selector, mapped to their identifiers.
var AudioSourceMap = map[string]int{
	"default":            0,
	"mic":                1,
	"camcorder":          5,
	"voicerecognition":   6,
	"voicecommunication": 7,
	"unprocessed":        9,
}

// Parse an audio source given either by name (see AudioSourceMap, case and
// separator insensitive) or as a non-negative integer.
func ParseAudioSource(s string) (int, error) {
	name := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.TrimSpace(s)))
	if name == "" {
		return 0, nil
	}
	if id, ok := AudioSourceMap[name]; ok {
		return id, nil
	}

	id, err := strconv.Atoi(name)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("no audio source with associated string %s", s)
	}
	return id, nil
}
