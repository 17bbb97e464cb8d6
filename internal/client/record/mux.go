package record

import (
	"bytes"
	"encoding/binary"
)

// Minimal RIFF/AVI writer for the MJPEG+PCM artifact: one video stream
// ("MJPG"), one mono 16-bit PCM stream, movi chunk list, idx1 index.

var (
	videoChunkID = [4]byte{'0', '0', 'd', 'c'}
	audioChunkID = [4]byte{'0', '1', 'w', 'b'}
)

type chunk struct {
	id   [4]byte
	data []byte
}

type aviParams struct {
	Width      int
	Height     int
	FPS        int
	SampleRate int
	Frames     int
	Samples    int
}

const (
	aviFlagHasIndex      = 0x00000010
	aviFlagIsInterleaved = 0x00000100
	aviIndexKeyframe     = 0x00000010
)

func muxAVI(p aviParams, chunks []chunk) []byte {
	movi := buildMovi(chunks)
	idx := buildIndex(chunks)
	hdrl := buildHdrl(p)

	var riff bytes.Buffer
	riff.WriteString("RIFF")
	body := len("AVI ") + len(hdrl) + len(movi) + len(idx)
	writeU32(&riff, uint32(body))
	riff.WriteString("AVI ")
	riff.Write(hdrl)
	riff.Write(movi)
	riff.Write(idx)
	return riff.Bytes()
}

func buildHdrl(p aviParams) []byte {
	var avih bytes.Buffer
	usPerFrame := uint32(0)
	if p.FPS > 0 {
		usPerFrame = uint32(1000000 / p.FPS)
	}
	writeU32(&avih, usPerFrame)
	writeU32(&avih, 0) // max bytes/sec
	writeU32(&avih, 0) // padding granularity
	writeU32(&avih, aviFlagHasIndex|aviFlagIsInterleaved)
	writeU32(&avih, uint32(p.Frames))
	writeU32(&avih, 0) // initial frames
	writeU32(&avih, 2) // streams
	writeU32(&avih, 0) // suggested buffer size
	writeU32(&avih, uint32(p.Width))
	writeU32(&avih, uint32(p.Height))
	avih.Write(make([]byte, 16)) // reserved

	video := buildStreamList(
		streamHeader{Type: "vids", Handler: "MJPG", Scale: 1, Rate: uint32(p.FPS), Length: uint32(p.Frames)},
		buildBitmapInfo(p.Width, p.Height),
	)
	audio := buildStreamList(
		streamHeader{Type: "auds", Scale: 1, Rate: uint32(p.SampleRate), Length: uint32(p.Samples), SampleSize: 2},
		buildWaveFormat(p.SampleRate),
	)

	var hdrl bytes.Buffer
	hdrl.WriteString("hdrl")
	writeChunk(&hdrl, "avih", avih.Bytes())
	hdrl.Write(video)
	hdrl.Write(audio)
	return wrapList(hdrl.Bytes())
}

type streamHeader struct {
	Type       string
	Handler    string
	Scale      uint32
	Rate       uint32
	Length     uint32
	SampleSize uint32
}

func buildStreamList(h streamHeader, format []byte) []byte {
	var strh bytes.Buffer
	strh.WriteString(h.Type)
	if h.Handler != "" {
		strh.WriteString(h.Handler)
	} else {
		writeU32(&strh, 0)
	}
	writeU32(&strh, 0) // flags
	writeU16(&strh, 0) // priority
	writeU16(&strh, 0) // language
	writeU32(&strh, 0) // initial frames
	writeU32(&strh, h.Scale)
	writeU32(&strh, h.Rate)
	writeU32(&strh, 0) // start
	writeU32(&strh, h.Length)
	writeU32(&strh, 0) // suggested buffer size
	writeU32(&strh, 0xFFFFFFFF) // quality: default
	writeU32(&strh, h.SampleSize)
	strh.Write(make([]byte, 8)) // rcFrame

	var strl bytes.Buffer
	strl.WriteString("strl")
	writeChunk(&strl, "strh", strh.Bytes())
	writeChunk(&strl, "strf", format)
	return wrapList(strl.Bytes())
}

func buildBitmapInfo(w, h int) []byte {
	var b bytes.Buffer
	writeU32(&b, 40) // header size
	writeU32(&b, uint32(w))
	writeU32(&b, uint32(h))
	writeU16(&b, 1)  // planes
	writeU16(&b, 24) // bit count
	b.WriteString("MJPG")
	writeU32(&b, uint32(w*h*3)) // size image
	writeU32(&b, 0)             // x pels/meter
	writeU32(&b, 0)             // y pels/meter
	writeU32(&b, 0)             // colors used
	writeU32(&b, 0)             // colors important
	return b.Bytes()
}

func buildWaveFormat(sampleRate int) []byte {
	var b bytes.Buffer
	writeU16(&b, 1) // PCM
	writeU16(&b, 1) // mono
	writeU32(&b, uint32(sampleRate))
	writeU32(&b, uint32(sampleRate*2)) // avg bytes/sec
	writeU16(&b, 2)                    // block align
	writeU16(&b, 16)                   // bits/sample
	return b.Bytes()
}

func buildMovi(chunks []chunk) []byte {
	var movi bytes.Buffer
	movi.WriteString("movi")
	for _, c := range chunks {
		movi.Write(c.id[:])
		writeU32(&movi, uint32(len(c.data)))
		movi.Write(c.data)
		if len(c.data)%2 == 1 {
			movi.WriteByte(0)
		}
	}
	return wrapList(movi.Bytes())
}

func buildIndex(chunks []chunk) []byte {
	var idx bytes.Buffer
	offset := uint32(4) // relative to "movi" fourcc
	for _, c := range chunks {
		idx.Write(c.id[:])
		writeU32(&idx, aviIndexKeyframe)
		writeU32(&idx, offset)
		writeU32(&idx, uint32(len(c.data)))
		padded := uint32(len(c.data))
		if padded%2 == 1 {
			padded++
		}
		offset += 8 + padded
	}
	var out bytes.Buffer
	writeChunk(&out, "idx1", idx.Bytes())
	return out.Bytes()
}

// wrapList prefixes body (fourcc + payload) with "LIST" and its size.
func wrapList(body []byte) []byte {
	var b bytes.Buffer
	b.WriteString("LIST")
	writeU32(&b, uint32(len(body)))
	b.Write(body)
	return b.Bytes()
}

func writeChunk(b *bytes.Buffer, id string, data []byte) {
	b.WriteString(id)
	writeU32(b, uint32(len(data)))
	b.Write(data)
	if len(data)%2 == 1 {
		b.WriteByte(0)
	}
}

func writeU32(b *bytes.Buffer, v uint32) {
	_ = binary.Write(b, binary.LittleEndian, v)
}

func writeU16(b *bytes.Buffer, v uint16) {
	_ = binary.Write(b, binary.LittleEndian, v)
}
