package logutil

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
)

type fakeFormatter struct {
	out []byte
	err error
}

func (f *fakeFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return f.out, f.err
}

func TestFormatPrependsPrefix(t *testing.T) {
	t.Parallel()

	f := NewPrefixFormatter(&fakeFormatter{out: []byte("line\n")}, "[vm] ")
	got, err := f.Format(&logrus.Entry{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, []byte("[vm] line\n")) {
		t.Errorf("got %q, want %q", got, "[vm] line\n")
	}
}

func TestFormatPropagatesUnderlyingError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("boom")
	f := NewPrefixFormatter(&fakeFormatter{err: wantErr}, "[vm] ")
	_, err := f.Format(&logrus.Entry{})
	if !errors.Is(err, wantErr) {
		t.Errorf("got %v, want %v", err, wantErr)
	}
}
