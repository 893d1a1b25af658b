package geomodel

import (
	"time"

	"github.com/mailru/easyjson/jwriter"
)

// PointList is the payload of point listings and box searches.
type PointList []Point

func (v Point) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawString(`{"id":`)
	w.String(v.ID)
	w.RawString(`,"name":`)
	w.String(v.Name)
	w.RawString(`,"country":`)
	w.String(v.Country)
	w.RawString(`,"lat":`)
	w.Float64(v.Lat)
	w.RawString(`,"lng":`)
	w.Float64(v.Lng)
	w.RawByte('}')
}

func (v Point) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	v.MarshalEasyJSON(&w)
	return w.Buffer.BuildBytes(), w.Error
}

func (v PointList) MarshalEasyJSON(w *jwriter.Writer) {
	if v == nil {
		w.RawString("[]")
		return
	}
	w.RawByte('[')
	for i, p := range v {
		if i > 0 {
			w.RawByte(',')
		}
		p.MarshalEasyJSON(w)
	}
	w.RawByte(']')
}

func (v PointList) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	v.MarshalEasyJSON(&w)
	return w.Buffer.BuildBytes(), w.Error
}

func (v Route) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawString(`{"start":`)
	w.String(v.Start)
	w.RawString(`,"end":`)
	w.String(v.End)
	w.RawString(`,"path":`)
	if v.Path == nil {
		w.RawString("[]")
	} else {
		w.RawByte('[')
		for i, id := range v.Path {
			if i > 0 {
				w.RawByte(',')
			}
			w.String(id)
		}
		w.RawByte(']')
	}
	w.RawString(`,"distance_km":`)
	w.Float64(v.DistanceKm)
	if !v.CreatedAt.IsZero() {
		w.RawString(`,"created_at":`)
		w.String(v.CreatedAt.UTC().Format(time.RFC3339Nano))
	}
	w.RawByte('}')
}

func (v Route) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	v.MarshalEasyJSON(&w)
	return w.Buffer.BuildBytes(), w.Error
}
