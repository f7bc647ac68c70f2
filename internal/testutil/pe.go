package testutil

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

const (
	peOffset    = 0x40
	fileAlign   = 0x200
	sectionSize = 0x200
)

// MinimalPE returns a small, well-formed, unsigned PE image with one .text
// section. is64 selects PE32+ over PE32.
func MinimalPE(is64 bool) []byte {
	optSize := 224
	if is64 {
		optSize = 240
	}

	data := make([]byte, fileAlign+sectionSize)
	copy(data, "MZ")
	binary.LittleEndian.PutUint32(data[0x3c:], peOffset)
	copy(data[peOffset:], "PE\x00\x00")

	coff := peOffset + 4
	machine := uint16(0x14c)
	if is64 {
		machine = 0x8664
	}
	binary.LittleEndian.PutUint16(data[coff:], machine)
	binary.LittleEndian.PutUint16(data[coff+2:], 1) // NumberOfSections
	binary.LittleEndian.PutUint16(data[coff+16:], uint16(optSize))
	binary.LittleEndian.PutUint16(data[coff+18:], 0x0022) // executable, large address aware

	opt := coff + 20
	if is64 {
		binary.LittleEndian.PutUint16(data[opt:], 0x20b)
		binary.LittleEndian.PutUint64(data[opt+24:], 0x140000000) // ImageBase
	} else {
		binary.LittleEndian.PutUint16(data[opt:], 0x10b)
		binary.LittleEndian.PutUint32(data[opt+28:], 0x400000) // ImageBase
	}
	binary.LittleEndian.PutUint32(data[opt+4:], sectionSize) // SizeOfCode
	binary.LittleEndian.PutUint32(data[opt+16:], 0x1000)     // AddressOfEntryPoint
	binary.LittleEndian.PutUint32(data[opt+20:], 0x1000)     // BaseOfCode
	binary.LittleEndian.PutUint32(data[opt+32:], 0x1000)     // SectionAlignment
	binary.LittleEndian.PutUint32(data[opt+36:], fileAlign)  // FileAlignment
	binary.LittleEndian.PutUint16(data[opt+40:], 6)          // MajorOperatingSystemVersion
	binary.LittleEndian.PutUint16(data[opt+48:], 6)          // MajorSubsystemVersion
	binary.LittleEndian.PutUint32(data[opt+56:], 0x2000)     // SizeOfImage
	binary.LittleEndian.PutUint32(data[opt+60:], fileAlign)  // SizeOfHeaders
	binary.LittleEndian.PutUint16(data[opt+68:], 3)          // Subsystem: console
	if is64 {
		binary.LittleEndian.PutUint32(data[opt+108:], 16) // NumberOfRvaAndSizes
	} else {
		binary.LittleEndian.PutUint32(data[opt+92:], 16)
	}

	sec := opt + optSize
	copy(data[sec:], ".text")
	binary.LittleEndian.PutUint32(data[sec+8:], sectionSize)  // VirtualSize
	binary.LittleEndian.PutUint32(data[sec+12:], 0x1000)      // VirtualAddress
	binary.LittleEndian.PutUint32(data[sec+16:], sectionSize) // SizeOfRawData
	binary.LittleEndian.PutUint32(data[sec+20:], fileAlign)   // PointerToRawData
	binary.LittleEndian.PutUint32(data[sec+36:], 0x60000020)  // code, execute, read

	for i := range sectionSize {
		data[fileAlign+i] = byte(i*7 + 3)
	}
	data[fileAlign] = 0xc3 // ret
	return data
}

// WritePE writes MinimalPE(true) to dir/name and returns its path.
func WritePE(t testing.TB, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, MinimalPE(true), 0o755); err != nil {
		t.Fatalf("failed to write PE fixture: %v", err)
	}
	return path
}
