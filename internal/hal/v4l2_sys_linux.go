//go:build linux

package hal

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Minimal V4L2 ABI surface for memory-mapped streaming capture.
// Layouts match <linux/videodev2.h> on 64-bit; request codes are the
// precomputed _IOWR/_IOW values for those sizes.

const (
	v4l2BufTypeVideoCapture = 1
	v4l2MemoryMmap          = 1
	v4l2FieldNone           = 1

	// 'RGB3': packed 24-bit RGB.
	v4l2PixFmtRGB24 = uint32('R') | uint32('G')<<8 | uint32('B')<<16 | uint32('3')<<24

	vidiocSFmt      = 0xc0d05605 // VIDIOC_S_FMT, _IOWR('V', 5, v4l2_format[208])
	vidiocReqBufs   = 0xc0145608 // VIDIOC_REQBUFS, _IOWR('V', 8, v4l2_requestbuffers[20])
	vidiocQueryBuf  = 0xc0585609 // VIDIOC_QUERYBUF, _IOWR('V', 9, v4l2_buffer[88])
	vidiocQBuf      = 0xc058560f // VIDIOC_QBUF
	vidiocDQBuf     = 0xc0585611 // VIDIOC_DQBUF
	vidiocStreamOn  = 0x40045612 // VIDIOC_STREAMON, _IOW('V', 18, int)
	vidiocStreamOff = 0x40045613 // VIDIOC_STREAMOFF, _IOW('V', 19, int)
)

// v4l2PixFormat mirrors struct v4l2_pix_format (48 bytes).
type v4l2PixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  uint32
	Field        uint32
	BytesPerLine uint32
	SizeImage    uint32
	ColorSpace   uint32
	Priv         uint32
	Flags        uint32
	YcbcrEnc     uint32
	Quantization uint32
	XferFunc     uint32
}

// v4l2Format mirrors struct v4l2_format (208 bytes): type + 200-byte union,
// of which only the pix member is used here.
type v4l2Format struct {
	Type uint32
	_    uint32 // union is 8-byte aligned
	Pix  v4l2PixFormat
	_    [200 - unsafe.Sizeof(v4l2PixFormat{})]byte
}

// v4l2RequestBuffers mirrors struct v4l2_requestbuffers (20 bytes).
type v4l2RequestBuffers struct {
	Count        uint32
	Type         uint32
	Memory       uint32
	Capabilities uint32
	Reserved     [1]uint32
}

// v4l2Timecode mirrors struct v4l2_timecode (16 bytes).
type v4l2Timecode struct {
	Type     uint32
	Flags    uint32
	Frames   uint8
	Seconds  uint8
	Minutes  uint8
	Hours    uint8
	Userbits [4]uint8
}

// v4l2Buffer mirrors struct v4l2_buffer (88 bytes on 64-bit). M carries the
// union { offset; userptr; planes; fd }; mmap streaming reads the offset
// from its low half.
type v4l2Buffer struct {
	Index     uint32
	Type      uint32
	BytesUsed uint32
	Flags     uint32
	Field     uint32
	_         uint32 // align timestamp to 8
	Timestamp unix.Timeval
	Timecode  v4l2Timecode
	Sequence  uint32
	Memory    uint32
	M         uint64
	Length    uint32
	Reserved2 uint32
	RequestFD int32
	_         uint32
}

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
		if errno == 0 {
			return nil
		}
		if errno != unix.EINTR {
			return errno
		}
	}
}
