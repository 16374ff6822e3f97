package service

import (
	"github.com/timmy/itinerary-ingest/internal/domain"
)

// SelectHeroImage picks the hero image from candidates, or nil when empty.
// Priority: flagged hero (high quality first), high wildlife, high landscape,
// any high, any wildlife, any landscape, first.
func SelectHeroImage(candidates []domain.Media) *domain.Media {
	images := make([]*domain.Media, 0, len(candidates))
	for i := range candidates {
		if candidates[i].MediaType != domain.MediaTypeVideo {
			images = append(images, &candidates[i])
		}
	}
	if len(images) == 0 {
		return nil
	}

	high := func(m *domain.Media) bool { return m.Quality == domain.QualityHigh }
	rules := []func(*domain.Media) bool{
		func(m *domain.Media) bool { return m.IsHero && high(m) },
		func(m *domain.Media) bool { return m.IsHero },
		func(m *domain.Media) bool { return high(m) && m.ImageType == domain.ImageTypeWildlife },
		func(m *domain.Media) bool { return high(m) && m.ImageType == domain.ImageTypeLandscape },
		high,
		func(m *domain.Media) bool { return m.ImageType == domain.ImageTypeWildlife },
		func(m *domain.Media) bool { return m.ImageType == domain.ImageTypeLandscape },
	}
	for _, rule := range rules {
		if m := firstMatch(images, rule); m != nil {
			return m
		}
	}
	return images[0]
}

// SelectHeroVideo picks the hero video for itineraryID, or nil when empty.
// Priority: hero context from this itinerary, from this itinerary, hero
// context from any itinerary, first.
func SelectHeroVideo(candidates []domain.Media, itineraryID string) *domain.Media {
	videos := make([]*domain.Media, 0, len(candidates))
	for i := range candidates {
		if candidates[i].MediaType == domain.MediaTypeVideo {
			videos = append(videos, &candidates[i])
		}
	}
	if len(videos) == 0 {
		return nil
	}

	hero := func(m *domain.Media) bool { return m.VideoContext == domain.VideoContextHero }
	local := func(m *domain.Media) bool { return m.SourceItinerary == itineraryID }
	rules := []func(*domain.Media) bool{
		func(m *domain.Media) bool { return hero(m) && local(m) },
		local,
		hero,
	}
	for _, rule := range rules {
		if m := firstMatch(videos, rule); m != nil {
			return m
		}
	}
	return videos[0]
}

func firstMatch(media []*domain.Media, pred func(*domain.Media) bool) *domain.Media {
	for _, m := range media {
		if pred(m) {
			return m
		}
	}
	return nil
}
