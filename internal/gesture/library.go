package gesture

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Gesture names understood by the scene transitions.
const (
	NameVictory  = "victory"
	NameThumbsUp = "thumbs_up"
	NameMiddleUp = "middle_up"
	NameRock     = "rock"
)

// libraryFile is the on-disk YAML layout.
type libraryFile struct {
	Gestures []*Description `yaml:"gestures"`
}

// ParseLibrary reads a YAML gesture library. Order in the file is declaration order.
func ParseLibrary(r io.Reader) ([]*Description, error) {
	var file libraryFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("gesture library is empty")
		}
		return nil, fmt.Errorf("decode gesture library: %w", err)
	}
	for i, d := range file.Gestures {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("gesture %d: %w", i, err)
		}
	}
	return file.Gestures, nil
}

// LoadLibraryFile reads a YAML gesture library from path.
func LoadLibraryFile(path string) ([]*Description, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseLibrary(f)
}

// WriteLibrary encodes descriptions as a YAML gesture library.
func WriteLibrary(w io.Writer, library []*Description) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(libraryFile{Gestures: library}); err != nil {
		return err
	}
	return enc.Close()
}

// DefaultLibrary returns the built-in gestures in declaration order.
func DefaultLibrary() []*Description {
	return []*Description{Victory(), ThumbsUp(), MiddleUp(), Rock()}
}

// Victory is index and middle finger up, the rest folded.
func Victory() *Description {
	d := NewDescription(NameVictory).
		AddCurl(Thumb, HalfCurl, 0.5).
		AddCurl(Thumb, NoCurl, 0.5).
		AddDirection(Thumb, VerticalUp, 1.0).
		AddDirection(Thumb, DiagonalUpLeft, 1.0).
		AddDirection(Thumb, DiagonalUpRight, 1.0).
		AddCurl(Index, NoCurl, 1.0).
		AddDirection(Index, VerticalUp, 1.0).
		AddDirection(Index, DiagonalUpLeft, 1.0).
		AddDirection(Index, DiagonalUpRight, 1.0).
		AddCurl(Middle, NoCurl, 1.0).
		AddDirection(Middle, VerticalUp, 1.0).
		AddDirection(Middle, DiagonalUpLeft, 0.75).
		AddDirection(Middle, DiagonalUpRight, 0.75)
	for _, f := range []Finger{Ring, Pinky} {
		d.AddCurl(f, FullCurl, 1.0).AddCurl(f, HalfCurl, 0.9)
	}
	return d
}

// ThumbsUp is an extended thumb pointing up over a closed fist.
func ThumbsUp() *Description {
	d := NewDescription(NameThumbsUp).
		AddCurl(Thumb, NoCurl, 1.0).
		AddDirection(Thumb, VerticalUp, 1.0).
		AddDirection(Thumb, DiagonalUpLeft, 0.25).
		AddDirection(Thumb, DiagonalUpRight, 0.25)
	for _, f := range []Finger{Index, Middle, Ring, Pinky} {
		d.AddCurl(f, FullCurl, 1.0).AddCurl(f, HalfCurl, 0.9)
	}
	return d
}

// MiddleUp is an extended middle finger over folded index, ring and pinky.
func MiddleUp() *Description {
	d := NewDescription(NameMiddleUp).
		AddCurl(Middle, NoCurl, 1.0).
		AddDirection(Middle, VerticalUp, 1.0).
		AddDirection(Middle, DiagonalUpLeft, 1.0).
		AddDirection(Middle, DiagonalUpRight, 1.0).
		AddDirection(Middle, HorizontalLeft, 1.0).
		AddDirection(Middle, HorizontalRight, 1.0)
	for _, f := range []Finger{Index, Ring, Pinky} {
		d.AddCurl(f, FullCurl, 1.0).AddCurl(f, HalfCurl, 0.9)
	}
	return d
}

// Rock is index and pinky extended with middle and ring folded.
func Rock() *Description {
	d := NewDescription(NameRock).
		AddCurl(Index, NoCurl, 1.0).
		AddCurl(Pinky, NoCurl, 1.0).
		AddDirection(Index, VerticalUp, 1.0).
		AddDirection(Index, DiagonalUpLeft, 0.9).
		AddDirection(Index, DiagonalUpRight, 0.9)
	for _, f := range []Finger{Middle, Ring} {
		d.AddCurl(f, FullCurl, 1.0).AddCurl(f, HalfCurl, 0.9)
	}
	return d
}
