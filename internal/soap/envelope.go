package soap

import (
	"encoding/xml"

	"overcast-sonos/internal/service"
)

const (
	envelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"
	sonosNS    = "http://www.sonos.com/Services/1.1"
)

type envelope struct {
	XMLName xml.Name     `xml:"soap:Envelope"`
	SoapNS  string       `xml:"xmlns:soap,attr"`
	Body    envelopeBody `xml:"soap:Body"`
}

type envelopeBody struct {
	Content any
}

type fault struct {
	XMLName xml.Name `xml:"soap:Fault"`
	Code    string   `xml:"faultcode"`
	String  string   `xml:"faultstring"`
}

// Requests. Field names match the child elements regardless of namespace.

type getSessionIDRequest struct {
	Username string `xml:"username"`
	Password string `xml:"password"`
}

type getMetadataRequest struct {
	ID        string `xml:"id"`
	Index     int    `xml:"index"`
	Count     int    `xml:"count"`
	Recursive bool   `xml:"recursive"`
}

type itemRequest struct {
	ID string `xml:"id"`
}

type progressRequest struct {
	ID           string `xml:"id"`
	Seconds      int    `xml:"seconds"`
	Status       string `xml:"status"`
	OffsetMillis int64  `xml:"offsetMillis"`
	ContextID    string `xml:"contextId"`
}

// Responses.

type getSessionIDResponse struct {
	XMLName xml.Name `xml:"getSessionIdResponse"`
	Xmlns   string   `xml:"xmlns,attr"`
	Result  string   `xml:"getSessionIdResult"`
}

type getMetadataResponse struct {
	XMLName xml.Name       `xml:"getMetadataResponse"`
	Xmlns   string         `xml:"xmlns,attr"`
	Result  metadataResult `xml:"getMetadataResult"`
}

type metadataResult struct {
	Index int   `xml:"index"`
	Count int   `xml:"count"`
	Total int   `xml:"total"`
	Items []any // mediaCollectionXML or mediaMetadataXML
}

type mediaCollectionXML struct {
	XMLName      xml.Name `xml:"mediaCollection"`
	ID           string   `xml:"id"`
	Title        string   `xml:"title"`
	ItemType     string   `xml:"itemType"`
	SemanticType string   `xml:"semanticType,omitempty"`
	AlbumArtURI  string   `xml:"albumArtURI,omitempty"`
	CanPlay      bool     `xml:"canPlay"`
	CanEnumerate bool     `xml:"canEnumerate"`
}

type mediaMetadataXML struct {
	XMLName       xml.Name         `xml:"mediaMetadata"`
	ID            string           `xml:"id"`
	Title         string           `xml:"title"`
	MimeType      string           `xml:"mimeType"`
	ItemType      string           `xml:"itemType"`
	SemanticType  string           `xml:"semanticType,omitempty"`
	Summary       string           `xml:"summary,omitempty"`
	ReleaseDate   string           `xml:"releaseDate,omitempty"`
	TrackMetadata trackMetadataXML `xml:"trackMetadata"`
}

type trackMetadataXML struct {
	Artist      string `xml:"artist"`
	AlbumArtist string `xml:"albumArtist"`
	AlbumArtURI string `xml:"albumArtURI,omitempty"`
	GenreID     string `xml:"genreId"`
	Duration    *int   `xml:"duration,omitempty"`
	CanResume   bool   `xml:"canResume"`
}

type getMediaMetadataResponse struct {
	XMLName xml.Name            `xml:"getMediaMetadataResponse"`
	Xmlns   string              `xml:"xmlns,attr"`
	Result  mediaMetadataResult `xml:"getMediaMetadataResult"`
}

type mediaMetadataResult struct {
	Metadata *mediaMetadataXML
}

type getMediaURIResponse struct {
	XMLName  xml.Name             `xml:"getMediaURIResponse"`
	Xmlns    string               `xml:"xmlns,attr"`
	Result   string               `xml:"getMediaURIResult"`
	Position *positionInformation `xml:"positionInformation,omitempty"`
}

type positionInformation struct {
	ID           string `xml:"id"`
	Index        int    `xml:"index"`
	OffsetMillis int64  `xml:"offsetMillis"`
}

type getLastUpdateResponse struct {
	XMLName xml.Name         `xml:"getLastUpdateResponse"`
	Xmlns   string           `xml:"xmlns,attr"`
	Result  lastUpdateResult `xml:"getLastUpdateResult"`
}

type lastUpdateResult struct {
	AutoRefreshEnabled bool   `xml:"autoRefreshEnabled"`
	Catalog            string `xml:"catalog"`
	Favorites          string `xml:"favorites"`
	PollInterval       int    `xml:"pollInterval"`
}

type reportPlaySecondsResponse struct {
	XMLName xml.Name                `xml:"reportPlaySecondsResponse"`
	Xmlns   string                  `xml:"xmlns,attr"`
	Result  reportPlaySecondsResult `xml:"reportPlaySecondsResult"`
}

type reportPlaySecondsResult struct {
	Interval int `xml:"interval"`
}

type emptyResponse struct {
	XMLName xml.Name
	Xmlns   string `xml:"xmlns,attr"`
}

func collectionXML(c service.MediaCollection) mediaCollectionXML {
	return mediaCollectionXML{
		ID:           c.ID,
		Title:        c.Title,
		ItemType:     c.ItemType,
		SemanticType: c.SemanticType,
		AlbumArtURI:  c.AlbumArtURI,
		CanPlay:      c.CanPlay,
		CanEnumerate: c.CanEnumerate,
	}
}

func metadataXML(m service.MediaMetadata) mediaMetadataXML {
	out := mediaMetadataXML{
		ID:           m.ID,
		Title:        m.Title,
		MimeType:     m.MimeType,
		ItemType:     m.ItemType,
		SemanticType: m.SemanticType,
		Summary:      m.Summary,
		ReleaseDate:  m.ReleaseDate,
		TrackMetadata: trackMetadataXML{
			Artist:      m.TrackMetadata.Artist,
			AlbumArtist: m.TrackMetadata.AlbumArtist,
			AlbumArtURI: m.TrackMetadata.AlbumArtURI,
			GenreID:     m.TrackMetadata.GenreID,
			CanResume:   m.TrackMetadata.CanResume,
		},
	}
	// An unknown length is left out rather than sent as a negative number.
	if d := m.TrackMetadata.Duration; d != nil && *d >= 0 {
		seconds := *d
		out.TrackMetadata.Duration = &seconds
	}
	return out
}

func listingXML(l service.Listing) metadataResult {
	result := metadataResult{Index: l.Index, Count: l.Count, Total: l.Total}
	for _, item := range l.Items {
		switch v := item.(type) {
		case service.MediaCollection:
			result.Items = append(result.Items, collectionXML(v))
		case service.MediaMetadata:
			result.Items = append(result.Items, metadataXML(v))
		}
	}
	return result
}

const presentationMap = `<?xml version="1.0" encoding="UTF-8"?>
<Presentation>
  <PresentationMap type="DisplayType">
    <RootNodeDisplayType>
      <DisplayMode>LIST</DisplayMode>
    </RootNodeDisplayType>
  </PresentationMap>
  <PresentationMap type="QuickSkips">
    <QuickSkip type="episode.podcast" forwardSeconds="45" backwardSeconds="10"/>
  </PresentationMap>
</Presentation>
`
