package broker

import (
	"encoding/json"
	"strconv"
)

// hashFields is the flat field set stored in each job's Redis hash. Result is
// kept as an opaque JSON blob since it only needs a single atomic write, at
// finalize time, never a partial update.
func hashFields(j Job) map[string]interface{} {
	resultJSON := ""
	if j.Result != nil {
		b, _ := json.Marshal(j.Result)
		resultJSON = string(b)
	}
	return map[string]interface{}{
		"id":          j.ID,
		"post_id":     j.Submission.PostID,
		"media_path":  j.Submission.WPMediaPath,
		"video_url":   j.Submission.WPVideoURL,
		"thumb_path":  j.Submission.WPThumbnailPath,
		"thumb_url":   j.Submission.WPThumbnailURL,
		"post_url":    j.Submission.WPPostURL,
		"year":        j.Submission.Year,
		"month":       j.Submission.Month,
		"created_at":  j.CreatedAt,
		"updated_at":  j.UpdatedAt,
		"attempts":    j.Attempts,
		"state":       string(j.State),
		"progress":    j.Progress,
		"stage":       j.Stage,
		"error":       j.Error,
		"result_json": resultJSON,
		"claimed_by":  j.ClaimedBy,
	}
}

func jobFromHash(id string, m map[string]string) (Job, error) {
	atoi := func(s string) int {
		n, _ := strconv.Atoi(s)
		return n
	}
	atoi64 := func(s string) int64 {
		n, _ := strconv.ParseInt(s, 10, 64)
		return n
	}

	j := Job{
		ID: id,
		Submission: Submission{
			PostID:          atoi(m["post_id"]),
			WPMediaPath:     m["media_path"],
			WPVideoURL:      m["video_url"],
			WPThumbnailPath: m["thumb_path"],
			WPThumbnailURL:  m["thumb_url"],
			WPPostURL:       m["post_url"],
			Year:            atoi(m["year"]),
			Month:           atoi(m["month"]),
		},
		CreatedAt: atoi64(m["created_at"]),
		UpdatedAt: atoi64(m["updated_at"]),
		Attempts:  atoi(m["attempts"]),
		State:     State(m["state"]),
		Progress:  atoi(m["progress"]),
		Stage:     m["stage"],
		Error:     m["error"],
		ClaimedBy: m["claimed_by"],
	}

	if rj := m["result_json"]; rj != "" {
		var res Result
		if err := json.Unmarshal([]byte(rj), &res); err != nil {
			return Job{}, err
		}
		j.Result = &res
	}

	return j, nil
}
