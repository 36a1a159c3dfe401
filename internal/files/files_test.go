package files

import (
	"bytes"
	"encoding/hex"
	"errors"
	"reflect"
	"strings"
	"testing"

	"example.com/arinc665/internal/arinc665"
	"example.com/arinc665/internal/checkvalue"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("hex: %v", err)
	}
	return b
}

func mustCheckValue(t *testing.T, typ checkvalue.Type, data string) checkvalue.CheckValue {
	t.Helper()
	cv, err := checkvalue.Compute(typ, []byte(data))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	return cv
}

func TestStrings(t *testing.T) {
	raw, err := EncodeString("ABC")
	if err != nil {
		t.Fatalf("EncodeString: %v", err)
	}
	if want := []byte{0x00, 0x03, 'A', 'B', 'C', 0x00}; !bytes.Equal(raw, want) {
		t.Fatalf("EncodeString = % X, want % X", raw, want)
	}
	s, next, err := DecodeString(raw, 0)
	if err != nil || s != "ABC" || next != 6 {
		t.Fatalf("DecodeString = %q, %d, %v", s, next, err)
	}
	raw[5] = 0x01
	if _, _, err := DecodeString(raw, 0); !errors.Is(err, arinc665.ErrFormat) {
		t.Fatalf("DecodeString with bad padding error = %v, want ErrFormat", err)
	}
	if _, _, err := DecodeString([]byte{0x00, 0x04, 'A'}, 0); !errors.Is(err, arinc665.ErrFormat) {
		t.Fatalf("DecodeString truncated error = %v, want ErrFormat", err)
	}

	list, err := EncodeStrings([]string{"AB", "C"})
	if err != nil {
		t.Fatalf("EncodeStrings: %v", err)
	}
	got, next, err := DecodeStrings(list, 0)
	if err != nil || next != len(list) || !reflect.DeepEqual(got, []string{"AB", "C"}) {
		t.Fatalf("DecodeStrings = %v, %d, %v", got, next, err)
	}
	if _, err := EncodeString(strings.Repeat("x", 70000)); !errors.Is(err, arinc665.ErrFormat) {
		t.Fatalf("EncodeString oversize error = %v, want ErrFormat", err)
	}
}

func TestPaths(t *testing.T) {
	tests := []struct {
		media, wire string
	}{
		{media: "/", wire: "\\"},
		{media: "/DIR", wire: "\\DIR\\"},
		{media: "/DIR/SUB", wire: "\\DIR\\SUB\\"},
	}
	for _, tc := range tests {
		if got := EncodePath(tc.media); got != tc.wire {
			t.Fatalf("EncodePath(%q) = %q, want %q", tc.media, got, tc.wire)
		}
		if got := DecodePath(tc.wire); got != tc.media {
			t.Fatalf("DecodePath(%q) = %q, want %q", tc.wire, got, tc.media)
		}
	}
}

func TestBatchFileWireFormat(t *testing.T) {
	b := &BatchFile{Version: arinc665.Supplement2, PartNumber: "PN", Comment: "C"}
	b.AddTarget("T1", BatchLoadInfo{HeaderFilename: "A.LUH", PartNumber: "LPN"})
	raw, err := b.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := mustHex(t, "0000001990030000000000080000000c0002504e00014300000100000002543100010005412e4c55480000034c504e001e3c")
	if !bytes.Equal(raw, want) {
		t.Fatalf("Encode =\n%X\nwant\n%X", raw, want)
	}
}

func TestFileListWireFormat(t *testing.T) {
	f := &FileListFile{
		Version:        arinc665.Supplement345,
		MediaSet:       MediaSetInformation{PartNumber: "MS", MediaSequenceNumber: 1, NumberOfMediaSetMembers: 1},
		Files:          []FileInfo{{Filename: "F", PathName: "\\", MemberSequenceNumber: 1, Crc: 0x1234}},
		CheckValueType: checkvalue.Crc16,
	}
	raw, err := f.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := mustHex(t, "0000001ca00400000000000c0000000f000000000000001800024d530101000100000001460000015c00000112340000000600023fda47ba")
	if !bytes.Equal(raw, want) {
		t.Fatalf("Encode =\n%X\nwant\n%X", raw, want)
	}
}

func TestFileListRoundTrip(t *testing.T) {
	for _, v := range []arinc665.SupportedVersion{arinc665.Supplement2, arinc665.Supplement345} {
		t.Run(v.String(), func(t *testing.T) {
			f := &FileListFile{
				Version:  v,
				MediaSet: MediaSetInformation{PartNumber: "MEDIASET-01", MediaSequenceNumber: 2, NumberOfMediaSetMembers: 3},
				Files: []FileInfo{
					{Filename: "LOADS.LUM", PathName: "\\", MemberSequenceNumber: 1, Crc: 0xABCD},
					{Filename: "APP.BIN", PathName: "\\LOAD1\\", MemberSequenceNumber: 3, Crc: 0x0102},
				},
				UserDefinedData: []byte{0xCA, 0xFE},
			}
			if v == arinc665.Supplement345 {
				f.CheckValueType = checkvalue.Sha256
				f.Files[1].CheckValue = mustCheckValue(t, checkvalue.Crc32, "app")
			}
			raw, err := f.Encode()
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := DecodeFileListFile(raw)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(got, f) {
				t.Fatalf("Decode = %+v, want %+v", got, f)
			}
		})
	}
}

func TestLoadListRoundTrip(t *testing.T) {
	for _, v := range []arinc665.SupportedVersion{arinc665.Supplement2, arinc665.Supplement345} {
		t.Run(v.String(), func(t *testing.T) {
			f := &LoadListFile{
				Version:  v,
				MediaSet: MediaSetInformation{PartNumber: "MS", MediaSequenceNumber: 1, NumberOfMediaSetMembers: 1},
				Loads: []LoadInfo{
					{PartNumber: "PN127ABCDEFGH", HeaderFilename: "APP.LUH", MemberSequenceNumber: 1, TargetHardwareIDs: []string{"ABCD1234", "X"}},
					{PartNumber: "LOAD2", HeaderFilename: "CFG.LUH", MemberSequenceNumber: 1},
				},
			}
			raw, err := f.Encode()
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := DecodeLoadListFile(raw)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(got, f) {
				t.Fatalf("Decode = %+v, want %+v", got, f)
			}
		})
	}
}

func TestBatchListRoundTrip(t *testing.T) {
	f := &BatchListFile{
		Version:  arinc665.Supplement345,
		MediaSet: MediaSetInformation{PartNumber: "MS", MediaSequenceNumber: 1, NumberOfMediaSetMembers: 2},
		Batches: []BatchInfo{
			{PartNumber: "BATCH1", Filename: "B1.LUB", MemberSequenceNumber: 2},
		},
		UserDefinedData: []byte{1, 2, 3, 4},
	}
	raw, err := f.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := DecodeBatchListFile(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got, f) {
		t.Fatalf("Decode = %+v, want %+v", got, f)
	}
}

func sampleLoadHeader(t *testing.T, v arinc665.SupportedVersion) *LoadHeaderFile {
	t.Helper()
	h := &LoadHeaderFile{
		Version:           v,
		PartNumber:        "PN127ABCDEFGH",
		TargetHardwareIDs: []string{"ABCD1234"},
		DataFiles: []LoadFileInfo{
			{Filename: "APP.BIN", PartNumber: "APP-PN", Length: 4, Crc: 0x1111},
			{Filename: "APP2.BIN", PartNumber: "APP2-PN", Length: 10, Crc: 0x2222},
		},
		UserDefinedData: []byte{0x55, 0xAA},
		LoadCrc:         0xDEADBEEF,
	}
	if v == arinc665.Supplement345 {
		h.PartFlags = PartFlagDownload
		h.LoadType = &LoadType{Description: "Application", ID: 0x0100}
		h.TargetHardwareIDPositions = []TargetHardwareIDPositions{
			{TargetHardwareID: "ABCD1234", Positions: []string{"L", "R"}},
		}
		h.DataFiles[1].Length = 9
		h.DataFiles[0].CheckValue = mustCheckValue(t, checkvalue.Md5, "app")
		h.SupportFiles = []LoadFileInfo{{Filename: "README.TXT", PartNumber: "DOC", Length: 7, Crc: 0x3333}}
		h.LoadCheckValue = mustCheckValue(t, checkvalue.Sha1, "load")
	}
	return h
}

func TestLoadHeaderRoundTrip(t *testing.T) {
	for _, v := range []arinc665.SupportedVersion{arinc665.Supplement2, arinc665.Supplement345} {
		t.Run(v.String(), func(t *testing.T) {
			h := sampleLoadHeader(t, v)
			raw, err := h.Encode()
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := DecodeLoadHeaderFile(raw)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(got, h) {
				t.Fatalf("Decode = %+v, want %+v", got, h)
			}
		})
	}
}

func TestLoadHeaderRejectsPartFlagsInSupplement2(t *testing.T) {
	h := sampleLoadHeader(t, arinc665.Supplement2)
	h.PartFlags = PartFlagDownload
	if _, err := h.Encode(); !errors.Is(err, arinc665.ErrFormat) {
		t.Fatalf("Encode error = %v, want ErrFormat", err)
	}
}

func TestLoadHeaderCheckValueAndCrc(t *testing.T) {
	h := sampleLoadHeader(t, arinc665.Supplement345)
	h.LoadCheckValue = Placeholder(checkvalue.Sha256)
	h.LoadCrc = 0
	raw, err := h.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	contents := [][]byte{[]byte("DATA"), []byte("123456789"), []byte("support")}

	cv, err := ComputeLoadCheckValue(raw, checkvalue.Sha256, contents...)
	if err != nil {
		t.Fatalf("ComputeLoadCheckValue: %v", err)
	}
	if err := SetLoadCheckValue(raw, cv); err != nil {
		t.Fatalf("SetLoadCheckValue: %v", err)
	}
	crc, err := ComputeLoadCrc(raw, contents...)
	if err != nil {
		t.Fatalf("ComputeLoadCrc: %v", err)
	}
	if err := SetLoadCrc(raw, crc); err != nil {
		t.Fatalf("SetLoadCrc: %v", err)
	}

	got, err := DecodeLoadHeaderFile(raw)
	if err != nil {
		t.Fatalf("Decode after patch: %v", err)
	}
	if !got.LoadCheckValue.Equal(cv) {
		t.Fatalf("LoadCheckValue = %v, want %v", got.LoadCheckValue, cv)
	}
	if got.LoadCrc != crc {
		t.Fatalf("LoadCrc = %08X, want %08X", got.LoadCrc, crc)
	}
	again, err := ComputeLoadCheckValue(raw, checkvalue.Sha256, contents...)
	if err != nil || !again.Equal(cv) {
		t.Fatalf("recomputed load check value = %v, %v, want %v", again, err, cv)
	}
	if err := SetLoadCheckValue(raw, mustCheckValue(t, checkvalue.Crc32, "x")); !errors.Is(err, arinc665.ErrFormat) {
		t.Fatalf("SetLoadCheckValue with wrong size error = %v, want ErrFormat", err)
	}

	h2 := sampleLoadHeader(t, arinc665.Supplement2)
	raw2, err := h2.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := ComputeLoadCheckValue(raw2, checkvalue.Sha256); !errors.Is(err, arinc665.ErrFormat) {
		t.Fatalf("ComputeLoadCheckValue on supplement 2 error = %v, want ErrFormat", err)
	}
}

func TestBatchFileRoundTripMergesTargets(t *testing.T) {
	b := &BatchFile{Version: arinc665.Supplement345, PartNumber: "BATCH-PN", Comment: "Initial load"}
	b.AddTarget("L", BatchLoadInfo{HeaderFilename: "APP.LUH", PartNumber: "APP"})
	b.AddTarget("R", BatchLoadInfo{HeaderFilename: "APP.LUH", PartNumber: "APP"})
	b.AddTarget("L", BatchLoadInfo{HeaderFilename: "CFG.LUH", PartNumber: "CFG"})
	if len(b.Targets) != 2 || len(b.Targets[0].Loads) != 2 {
		t.Fatalf("AddTarget did not merge: %+v", b.Targets)
	}
	raw, err := b.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := DecodeBatchFile(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got, b) {
		t.Fatalf("Decode = %+v, want %+v", got, b)
	}
}

func TestDecodeErrors(t *testing.T) {
	ll := &LoadListFile{
		Version:  arinc665.Supplement345,
		MediaSet: MediaSetInformation{PartNumber: "MS", MediaSequenceNumber: 1, NumberOfMediaSetMembers: 1},
		Loads:    []LoadInfo{{PartNumber: "P", HeaderFilename: "A.LUH", MemberSequenceNumber: 1}},
	}
	raw, err := ll.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	tampered := append([]byte(nil), raw...)
	tampered[len(tampered)-4] ^= 0xFF
	if _, err := DecodeLoadListFile(tampered); !errors.Is(err, arinc665.ErrIntegrity) {
		t.Fatalf("tampered decode error = %v, want ErrIntegrity", err)
	}
	if _, err := DecodeLoadListFile(raw[:len(raw)-2]); !errors.Is(err, arinc665.ErrFormat) {
		t.Fatalf("truncated decode error = %v, want ErrFormat", err)
	}
	if _, err := DecodeLoadListFile(raw[:4]); !errors.Is(err, arinc665.ErrFormat) {
		t.Fatalf("short decode error = %v, want ErrFormat", err)
	}
	if _, err := DecodeBatchFile(raw); !errors.Is(err, arinc665.ErrFormat) {
		t.Fatalf("wrong type decode error = %v, want ErrFormat", err)
	}

	h := sampleLoadHeader(t, arinc665.Supplement345)
	luh, err := h.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// the load CRC is not covered by the file CRC
	luh[len(luh)-1] ^= 0xFF
	if _, err := DecodeLoadHeaderFile(luh); err != nil {
		t.Fatalf("decode with altered load CRC: %v", err)
	}
	luh[10] ^= 0xFF
	if _, err := DecodeLoadHeaderFile(luh); !errors.Is(err, arinc665.ErrIntegrity) {
		t.Fatalf("tampered load header error = %v, want ErrIntegrity", err)
	}
}

func TestEncodeRejectsInvalidRecords(t *testing.T) {
	bad := []struct {
		name string
		enc  func() ([]byte, error)
	}{
		{"sequence above members", (&LoadListFile{
			Version:  arinc665.Supplement2,
			MediaSet: MediaSetInformation{PartNumber: "MS", MediaSequenceNumber: 3, NumberOfMediaSetMembers: 2},
		}).Encode},
		{"zero member sequence", (&BatchListFile{
			Version:  arinc665.Supplement2,
			MediaSet: MediaSetInformation{PartNumber: "MS", MediaSequenceNumber: 1, NumberOfMediaSetMembers: 1},
			Batches:  []BatchInfo{{PartNumber: "B", Filename: "B.LUB"}},
		}).Encode},
		{"odd user data", (&FileListFile{
			Version:         arinc665.Supplement2,
			MediaSet:        MediaSetInformation{PartNumber: "MS", MediaSequenceNumber: 1, NumberOfMediaSetMembers: 1},
			UserDefinedData: []byte{1},
		}).Encode},
		{"invalid version", (&BatchFile{PartNumber: "B"}).Encode},
	}
	for _, tc := range bad {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.enc(); !errors.Is(err, arinc665.ErrFormat) {
				t.Fatalf("Encode error = %v, want ErrFormat", err)
			}
		})
	}
}

func TestDetectAndPrint(t *testing.T) {
	b := &BatchFile{Version: arinc665.Supplement345, PartNumber: "BATCH-PN", Comment: "hello"}
	b.AddTarget("L", BatchLoadInfo{HeaderFilename: "APP.LUH", PartNumber: "APP"})
	raw, err := b.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	class, v, err := Detect(raw)
	if err != nil || class != ClassBatchFile || v != arinc665.Supplement345 {
		t.Fatalf("Detect = %v, %v, %v", class, v, err)
	}
	var out bytes.Buffer
	if err := Print(&out, "B1.LUB", raw); err != nil {
		t.Fatalf("Print: %v", err)
	}
	for _, want := range []string{"BATCH-PN", "hello", "APP.LUH"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("Print output missing %q:\n%s", want, out.String())
		}
	}
	if err := Print(&out, "DATA.BIN", raw); !errors.Is(err, arinc665.ErrFormat) {
		t.Fatalf("Print regular file error = %v, want ErrFormat", err)
	}
}
