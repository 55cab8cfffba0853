//go:build !linux

package hal

import "fmt"

func openV4L2Camera(cfg CameraConfig) (Camera, error) {
	return nil, fmt.Errorf("%w: v4l2 capture requires linux", ErrNotSupported)
}
