//go:build !govips || !cgo

package normalize

func Startup() error {
	return nil
}

func Shutdown() {}

func newEncoder() Encoder {
	return stdEncoder{}
}
