package cluster

import "github.com/prismon/audio-janitor/internal/models"

// QualityScore rewards lossless formats, bitrate, sample rate and bit depth
func QualityScore(rec *models.AudioRecord) float64 {
	score := 0.0
	if rec.Lossless {
		score += 1000
	}
	if rec.Bitrate != nil {
		score += float64(*rec.Bitrate)
	}
	if rec.SampleRate != nil {
		score += float64(*rec.SampleRate) / 100
	}
	if rec.BitDepth != nil {
		score += float64(*rec.BitDepth) * 10
	}
	return score
}

// KeeperScore ranks tag completeness above audio quality
func KeeperScore(rec *models.AudioRecord) float64 {
	return float64(rec.FilledTagCount())*1000 + QualityScore(rec)
}

// SuggestKeeper returns the path of the highest scoring record, the first one
// on ties, or nil when none of the records carries metadata.
func SuggestKeeper(records []*models.AudioRecord) *string {
	var best *models.AudioRecord
	bestScore := 0.0
	hasMetadata := false

	for _, rec := range records {
		if rec == nil {
			continue
		}
		if rec.HasMetadata() {
			hasMetadata = true
		}
		score := KeeperScore(rec)
		if best == nil || score > bestScore {
			best, bestScore = rec, score
		}
	}

	if !hasMetadata || best == nil {
		return nil
	}
	keep := best.Path
	return &keep
}
