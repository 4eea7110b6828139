package diskspec

import "os"

// isBlockSpecial reports whether location resolves to a character or block
// special file.
func isBlockSpecial(location string) bool {
	info, err := os.Stat(location)
	if err != nil {
		return false
	}
	mode := info.Mode()
	return mode&os.ModeDevice != 0
}
