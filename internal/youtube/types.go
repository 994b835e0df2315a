package youtube

import "errors"

// searchResponse is the subset of /search the resolver reads.
type searchResponse struct {
	Items *[]searchItem `json:"items"`
}

type searchItem struct {
	ID *struct {
		VideoID string `json:"videoId"`
	} `json:"id"`
}

// videosResponse is the subset of /videos the resolver reads.
type videosResponse struct {
	Items *[]videoItem `json:"items"`
}

type videoItem struct {
	ID      string `json:"id"`
	Snippet *struct {
		Title                string `json:"title"`
		ChannelTitle         string `json:"channelTitle"`
		LiveBroadcastContent string `json:"liveBroadcastContent"`
	} `json:"snippet"`
	ContentDetails *struct {
		Duration string `json:"duration"`
	} `json:"contentDetails"`
}

// apiErrorResponse is the error envelope Google APIs return with non-2xx statuses.
type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

var (
	errMissingItems   = errors.New("response has no items array")
	errMissingVideoID = errors.New("search item has no id.videoId")
	errMissingSnippet = errors.New("video item is missing snippet fields")
	errMissingDetails = errors.New("video item is missing contentDetails.duration")
)

func (r searchResponse) validate() error {
	if r.Items == nil {
		return errMissingItems
	}
	for _, item := range *r.Items {
		if item.ID == nil || item.ID.VideoID == "" {
			return errMissingVideoID
		}
	}
	return nil
}

func (r videosResponse) validate() error {
	if r.Items == nil {
		return errMissingItems
	}
	for _, item := range *r.Items {
		if item.Snippet == nil || item.Snippet.Title == "" || item.Snippet.ChannelTitle == "" ||
			item.Snippet.LiveBroadcastContent == "" {
			return errMissingSnippet
		}
		if item.ContentDetails == nil || item.ContentDetails.Duration == "" {
			return errMissingDetails
		}
	}
	return nil
}
