// Package kfmt provides formatted output for the kernel. Nothing in this
// package allocates memory, so it is usable before the Go allocator is
// available and from trap handlers.
package kfmt

import (
	"io"
	"unsafe"
)

// numBufSize bounds the width of a formatted number, sign included.
const numBufSize = 32

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")
	digits          = "0123456789abcdef"

	numBuf [numBufSize]byte

	// oneByte passes single characters to doWrite. Slicing a string
	// converts it to a heap allocated []byte so strings are emitted one
	// byte at a time through this buffer.
	oneByte = []byte{0}
)

// Fprintf writes formatted output to w. When w is nil the output goes to
// the early print buffer.
//
// The following subset of the fmt verbs is supported:
//
//	%s  string or []byte
//	%d  integer, base 10
//	%o  integer, base 8
//	%x  integer, base 16, lower-case letters
//	%t  bool
//	%c  byte or rune in the ASCII range
//	%%  a literal percent sign
//
// An optional decimal width may precede the verb. Strings and base-10
// numbers are left-padded with spaces; base-8 and base-16 numbers are
// left-padded with zeroes. Arguments are matched by their concrete built-in
// type only: the Stringer and error interfaces are not consulted since
// itables may not be initialized yet.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		argIndex int
		width    int
	)

	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			writeByte(w, format[i])
			continue
		}

		width = 0
		for i++; i < len(format) && format[i] >= '0' && format[i] <= '9'; i++ {
			width = width*10 + int(format[i]-'0')
		}

		if i == len(format) {
			doWrite(w, errNoVerb)
			break
		}

		verb := format[i]
		switch verb {
		case '%':
			writeByte(w, '%')
			continue
		case 'd', 'o', 'x', 's', 't', 'c':
		default:
			doWrite(w, errNoVerb)
			continue
		}

		if argIndex >= len(args) {
			doWrite(w, errMissingArg)
			continue
		}

		arg := args[argIndex]
		argIndex++

		switch verb {
		case 'd':
			writeInt(w, arg, 10, width)
		case 'o':
			writeInt(w, arg, 8, width)
		case 'x':
			writeInt(w, arg, 16, width)
		case 's':
			writeString(w, arg, width)
		case 't':
			writeBool(w, arg)
		case 'c':
			writeChar(w, arg)
		}
	}

	for ; argIndex < len(args); argIndex++ {
		doWrite(w, errExtraArg)
	}
}

func writeBool(w io.Writer, v interface{}) {
	b, ok := v.(bool)
	switch {
	case !ok:
		doWrite(w, errWrongArgType)
	case b:
		doWrite(w, trueValue)
	default:
		doWrite(w, falseValue)
	}
}

func writeChar(w io.Writer, v interface{}) {
	var ch rune
	switch c := v.(type) {
	case byte:
		ch = rune(c)
	case rune:
		ch = c
	default:
		doWrite(w, errWrongArgType)
		return
	}

	if ch < 0 || ch > 0x7f {
		ch = '?'
	}
	writeByte(w, byte(ch))
}

func writeString(w io.Writer, v interface{}, width int) {
	switch s := v.(type) {
	case string:
		writeRepeat(w, ' ', width-len(s))
		for i := 0; i < len(s); i++ {
			writeByte(w, s[i])
		}
	case []byte:
		writeRepeat(w, ' ', width-len(s))
		doWrite(w, s)
	default:
		doWrite(w, errWrongArgType)
	}
}

func writeRepeat(w io.Writer, ch byte, count int) {
	for ; count > 0; count-- {
		writeByte(w, ch)
	}
}

// intArg returns the magnitude and sign of any built-in integer value.
func intArg(v interface{}) (mag uint64, neg, ok bool) {
	var sval int64
	switch n := v.(type) {
	case uint8:
		return uint64(n), false, true
	case uint16:
		return uint64(n), false, true
	case uint32:
		return uint64(n), false, true
	case uint64:
		return n, false, true
	case uint:
		return uint64(n), false, true
	case uintptr:
		return uint64(n), false, true
	case int8:
		sval = int64(n)
	case int16:
		sval = int64(n)
	case int32:
		sval = int64(n)
	case int64:
		sval = n
	case int:
		sval = int64(n)
	default:
		return 0, false, false
	}

	if sval < 0 {
		return uint64(-sval), true, true
	}
	return uint64(sval), false, true
}

// writeInt formats v in base, right-aligned to width. The digits are
// assembled from the end of numBuf towards its start.
func writeInt(w io.Writer, v interface{}, base uint64, width int) {
	mag, neg, ok := intArg(v)
	if !ok {
		doWrite(w, errWrongArgType)
		return
	}

	if width >= numBufSize {
		width = numBufSize - 1
	}

	pos := numBufSize
	for {
		pos--
		numBuf[pos] = digits[mag%base]
		if mag /= base; mag == 0 {
			break
		}
	}

	// Space padding goes before the sign, zero padding after it.
	padCh := byte('0')
	if base == 10 {
		padCh = ' '
		if neg {
			pos--
			numBuf[pos] = '-'
		}
	}

	for numBufSize-pos < width {
		pos--
		numBuf[pos] = padCh
	}

	if neg && base != 10 {
		pos--
		numBuf[pos] = '-'
	}

	doWrite(w, numBuf[pos:])
}

func writeByte(w io.Writer, b byte) {
	oneByte[0] = b
	doWrite(w, oneByte)
}

// doWrite hides p from escape analysis. The sink is an interface whose
// concrete type is unknown to the compiler, so without this every call site
// would move its arguments to the heap.
func doWrite(w io.Writer, p []byte) {
	doRealWrite(w, noEscape(unsafe.Pointer(&p)))
}

func doRealWrite(w io.Writer, bufPtr unsafe.Pointer) {
	p := *(*[]byte)(bufPtr)
	if w == nil {
		earlyPrintBuffer.Write(p)
		return
	}
	w.Write(p)
}

// noEscape hides a pointer from escape analysis. This function is copied over
// from runtime/stubs.go
//
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
