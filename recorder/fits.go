package recorder

import (
	"fmt"
	"io"

	"github.com/astrogo/fitsio"
)

// ExportFITS streams a recording to w as a 16-bit FITS image of dimensions
// samples x channels, with the sidecar parameters carried as header cards.
// Lab viewers already speak FITS for camera data, so recordings ride along.
func ExportFITS(w io.Writer, rec Recording) error {
	if rec.MissingSidecar {
		return fmt.Errorf("cannot export a recording without its sidecar")
	}
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()

	chans := rec.Meta.Channels()
	samples := 0
	if chans > 0 {
		samples = len(rec.Flat) / chans
	}
	dims := []int{samples, chans}
	im := fitsio.NewImage(16, dims)
	defer im.Close()

	cards := []fitsio.Card{
		{Name: "SESSID", Value: rec.Meta.SessionID, Comment: "recording session ID"},
		{Name: "SRCFILE", Value: rec.Meta.SourceFile, Comment: "source data file"},
		{Name: "SRATE", Value: rec.Meta.SampleRate, Comment: "sample rate, Hz"},
		{Name: "VLOW", Value: rec.Meta.VoltageRange[0], Comment: "input range low, V"},
		{Name: "VHIGH", Value: rec.Meta.VoltageRange[1], Comment: "input range high, V"},
		{Name: "NCHAN", Value: chans, Comment: "channel count"},
	}
	err = im.Header().Append(cards...)
	if err != nil {
		return err
	}
	err = im.Write(rec.Flat)
	if err != nil {
		return err
	}
	return fits.Write(im)
}
