package authenticode

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"fmt"
)

const (
	lfanewOffset    = 0x3c
	coffHeaderSize  = 20
	checksumOffset  = 64 // within the optional header
	certDirIndex    = 4
	dataDirSize     = 8
	winCertHeader   = 8
	winCertRevision = 0x0200
	winCertTypePKCS = 0x0002
)

var machineNames = map[uint16]string{
	pe.IMAGE_FILE_MACHINE_I386:  "x86",
	pe.IMAGE_FILE_MACHINE_AMD64: "x86_64",
	pe.IMAGE_FILE_MACHINE_ARM64: "aarch64",
	pe.IMAGE_FILE_MACHINE_ARMNT: "armv7",
}

var subsystemNames = map[uint16]string{
	pe.IMAGE_SUBSYSTEM_WINDOWS_GUI:     "windows-gui",
	pe.IMAGE_SUBSYSTEM_WINDOWS_CUI:     "windows-console",
	pe.IMAGE_SUBSYSTEM_EFI_APPLICATION: "efi-application",
}

// image is a parsed PE file with the raw offsets Authenticode needs.
type image struct {
	data        []byte
	machine     uint16
	subsystem   uint16
	is64        bool
	checksumOff int
	certDirOff  int
	certOff     uint32
	certSize    uint32
}

func parseImage(data []byte) (*image, error) {
	f, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotExecutable, err)
	}
	defer f.Close()

	img := &image{data: data, machine: f.FileHeader.Machine}

	lfanew := int(binary.LittleEndian.Uint32(data[lfanewOffset:]))
	opt := lfanew + 4 + coffHeaderSize

	var dirsOff int
	var numDirs uint32
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		img.subsystem = oh.Subsystem
		numDirs = oh.NumberOfRvaAndSizes
		dirsOff = opt + 96
	case *pe.OptionalHeader64:
		img.is64 = true
		img.subsystem = oh.Subsystem
		numDirs = oh.NumberOfRvaAndSizes
		dirsOff = opt + 112
	default:
		return nil, fmt.Errorf("%w: missing optional header", ErrNotExecutable)
	}
	if numDirs <= certDirIndex {
		return nil, fmt.Errorf("%w: no certificate table directory", ErrNotExecutable)
	}

	img.checksumOff = opt + checksumOffset
	img.certDirOff = dirsOff + certDirIndex*dataDirSize
	if img.certDirOff+dataDirSize > len(data) {
		return nil, fmt.Errorf("%w: truncated data directories", ErrNotExecutable)
	}
	img.certOff = binary.LittleEndian.Uint32(data[img.certDirOff:])
	img.certSize = binary.LittleEndian.Uint32(data[img.certDirOff+4:])

	if img.certSize != 0 {
		end := uint64(img.certOff) + uint64(img.certSize)
		if int(img.certOff) < img.certDirOff+dataDirSize || end > uint64(len(data)) {
			return nil, fmt.Errorf("%w: certificate table out of range", ErrNotExecutable)
		}
		if end != uint64(len(data)) {
			return nil, fmt.Errorf("%w: certificate table is not at end of file", ErrNotExecutable)
		}
	}
	return img, nil
}

func (img *image) signed() bool {
	return img.certSize != 0
}

// body returns the image without its certificate table.
func (img *image) body() []byte {
	if img.signed() {
		return img.data[:img.certOff]
	}
	return img.data
}

// signature returns the first PKCS#7 blob in the certificate table.
func (img *image) signature() ([]byte, error) {
	if !img.signed() {
		return nil, ErrNotSigned
	}
	table := img.data[img.certOff : img.certOff+img.certSize]
	for len(table) >= winCertHeader {
		length := binary.LittleEndian.Uint32(table)
		revision := binary.LittleEndian.Uint16(table[4:])
		certType := binary.LittleEndian.Uint16(table[6:])
		if length < winCertHeader || uint64(length) > uint64(len(table)) {
			return nil, fmt.Errorf("%w: malformed certificate table entry", ErrInvalidSignature)
		}
		if revision == winCertRevision && certType == winCertTypePKCS {
			return table[winCertHeader:length], nil
		}
		next := align8(int(length))
		if next >= len(table) {
			break
		}
		table = table[next:]
	}
	return nil, fmt.Errorf("%w: no PKCS#7 entry in certificate table", ErrInvalidSignature)
}

// winCertificate wraps a PKCS#7 blob in a WIN_CERTIFICATE entry padded to a
// multiple of eight bytes.
func winCertificate(der []byte) []byte {
	length := winCertHeader + len(der)
	out := make([]byte, align8(length))
	binary.LittleEndian.PutUint32(out, uint32(length))
	binary.LittleEndian.PutUint16(out[4:], winCertRevision)
	binary.LittleEndian.PutUint16(out[6:], winCertTypePKCS)
	copy(out[winCertHeader:], der)
	return out
}

func align8(n int) int {
	return (n + 7) &^ 7
}

// ImageInfo summarizes a PE image.
type ImageInfo struct {
	Machine   string `json:"machine"`
	Subsystem string `json:"subsystem"`
	PE32Plus  bool   `json:"pe32_plus"`
	Signed    bool   `json:"signed"`
	Size      int    `json:"size"`
}

// Describe parses data as a PE image and summarizes its headers.
func Describe(data []byte) (*ImageInfo, error) {
	img, err := parseImage(data)
	if err != nil {
		return nil, err
	}
	machine, ok := machineNames[img.machine]
	if !ok {
		machine = fmt.Sprintf("0x%04x", img.machine)
	}
	subsystem, ok := subsystemNames[img.subsystem]
	if !ok {
		subsystem = fmt.Sprintf("%d", img.subsystem)
	}
	return &ImageInfo{
		Machine:   machine,
		Subsystem: subsystem,
		PE32Plus:  img.is64,
		Signed:    img.signed(),
		Size:      len(data),
	}, nil
}
