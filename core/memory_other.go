//go:build !unix

package core

func maxRSS() (int64, bool) {
	return 0, false
}
