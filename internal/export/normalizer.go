package export

import (
	"encoding/json"

	"go.uber.org/zap"
)

const (
	logMessageInvalidJSON         = "skipping export file with invalid JSON"
	logMessageUnrecognizedFile    = "skipping unrecognized export file"
	logMessageEmptyExtraction     = "export file contained no records"
	logMessageCategoryOverwritten = "export file replaced records of an earlier file"
	logMessageCategoryLoaded      = "loaded export file"
	logFieldFileName              = "file"
	logFieldCategory              = "category"
	logFieldRecordCount           = "records"
)

// ParsedFile is the normalization result of a single export document.
type ParsedFile struct {
	Category Category
	Entities []Entity
	Hashtags []string
}

// Count reports the number of records extracted from the file.
func (parsed ParsedFile) Count() int {
	if parsed.Category == CategoryFollowedHashtags {
		return len(parsed.Hashtags)
	}
	return len(parsed.Entities)
}

// ParseFile decodes rawText and extracts its records. It reports false when the text is
// not valid JSON or the category cannot be identified.
func ParseFile(fileName string, rawText string) (ParsedFile, bool, error) {
	var document any
	if err := json.Unmarshal([]byte(rawText), &document); err != nil {
		return ParsedFile{}, false, err
	}
	category, recognized := DetectCategory(fileName, document)
	if !recognized {
		return ParsedFile{}, false, nil
	}
	parsed := ParsedFile{Category: category}
	if category == CategoryFollowedHashtags {
		parsed.Hashtags = ExtractHashtags(document)
	} else {
		parsed.Entities = ExtractEntities(category, document)
	}
	return parsed, true, nil
}

// Normalizer reconciles export documents into a CanonicalSet. It holds no state besides
// its logger and is safe for concurrent use.
type Normalizer struct {
	logger *zap.Logger
}

// NewNormalizer constructs a Normalizer. A nil logger disables logging.
func NewNormalizer(logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{logger: logger}
}

// MergeFiles normalizes files in order. A non-empty extraction overwrites whatever an
// earlier file stored for the same category. Files that fail to parse are skipped.
func (normalizer *Normalizer) MergeFiles(files []InputFile) CanonicalSet {
	canonicalSet := NewCanonicalSet()
	loaded := map[Category]string{}
	for _, file := range files {
		parsed, recognized, parseErr := ParseFile(file.FileName, file.RawText)
		if parseErr != nil {
			normalizer.logger.Warn(logMessageInvalidJSON, zap.String(logFieldFileName, file.FileName), zap.Error(parseErr))
			continue
		}
		if !recognized {
			normalizer.logger.Debug(logMessageUnrecognizedFile, zap.String(logFieldFileName, file.FileName))
			continue
		}
		if parsed.Count() == 0 {
			normalizer.logger.Debug(logMessageEmptyExtraction,
				zap.String(logFieldFileName, file.FileName),
				zap.String(logFieldCategory, string(parsed.Category)))
			continue
		}
		if previousFile, exists := loaded[parsed.Category]; exists {
			normalizer.logger.Warn(logMessageCategoryOverwritten,
				zap.String(logFieldFileName, file.FileName),
				zap.String("replaced", previousFile),
				zap.String(logFieldCategory, string(parsed.Category)))
		}
		loaded[parsed.Category] = file.FileName

		if parsed.Category == CategoryFollowedHashtags {
			canonicalSet.FollowedHashtags = parsed.Hashtags
		} else {
			canonicalSet.SetEntities(parsed.Category, parsed.Entities)
		}
		normalizer.logger.Debug(logMessageCategoryLoaded,
			zap.String(logFieldFileName, file.FileName),
			zap.String(logFieldCategory, string(parsed.Category)),
			zap.Int(logFieldRecordCount, parsed.Count()))
	}
	return canonicalSet
}
