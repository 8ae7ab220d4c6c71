package transcode

import (
	"github.com/abdul-hamid-achik/vodcoach/internal/asset"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/mediaconvert/types"
)

const (
	PrimarySuffix   = "_720p"
	ThumbnailSuffix = "_thumb"

	MetadataOriginalKey = "originalKey"
	MetadataInstanceID  = "instanceId"
)

// Profile is one fixed-settings MediaConvert job.
type Profile struct {
	Input        string
	Destination  string
	Role         string
	Token        string
	UserMetadata map[string]string
	Settings     *types.JobSettings
}

// RecordingProfile renders an uploaded recording as a 720p H.264 MP4 plus a
// single JPEG frame, both written next to each other under
// recordings/processed/<fragment>.
func RecordingProfile(bucket string, original asset.Key, instance, role, token string) Profile {
	input := "s3://" + bucket + "/" + original.Raw
	dest := "s3://" + bucket + "/" + asset.ProcessedPrefix(original.Kind, original.Fragment)

	md := map[string]string{MetadataOriginalKey: original.OriginalKey()}
	if instance != "" {
		md[MetadataInstanceID] = instance
	}

	return Profile{
		Input:        input,
		Destination:  dest,
		Role:         role,
		Token:        token,
		UserMetadata: md,
		Settings:     recordingSettings(input, dest),
	}
}

func recordingSettings(input, dest string) *types.JobSettings {
	return &types.JobSettings{
		TimecodeConfig: &types.TimecodeConfig{Source: types.TimecodeSourceZerobased},
		Inputs: []types.Input{{
			FileInput:      aws.String(input),
			TimecodeSource: types.InputTimecodeSourceZerobased,
			VideoSelector:  &types.VideoSelector{},
			AudioSelectors: map[string]types.AudioSelector{
				"Audio Selector 1": {DefaultSelection: types.AudioDefaultSelectionDefault},
			},
		}},
		OutputGroups: []types.OutputGroup{{
			Name: aws.String("File Group"),
			OutputGroupSettings: &types.OutputGroupSettings{
				Type: types.OutputGroupTypeFileGroupSettings,
				FileGroupSettings: &types.FileGroupSettings{
					Destination: aws.String(dest),
				},
			},
			Outputs: []types.Output{primaryOutput(), thumbnailOutput()},
		}},
	}
}

func primaryOutput() types.Output {
	return types.Output{
		NameModifier: aws.String(PrimarySuffix),
		ContainerSettings: &types.ContainerSettings{
			Container:   types.ContainerTypeMp4,
			Mp4Settings: &types.Mp4Settings{},
		},
		VideoDescription: &types.VideoDescription{
			Height: aws.Int32(720),
			CodecSettings: &types.VideoCodecSettings{
				Codec: types.VideoCodecH264,
				H264Settings: &types.H264Settings{
					RateControlMode:   types.H264RateControlModeQvbr,
					MaxBitrate:        aws.Int32(5_000_000),
					SceneChangeDetect: types.H264SceneChangeDetectTransitionDetection,
				},
			},
		},
		AudioDescriptions: []types.AudioDescription{{
			CodecSettings: &types.AudioCodecSettings{
				Codec: types.AudioCodecAac,
				AacSettings: &types.AacSettings{
					Bitrate:    aws.Int32(96_000),
					CodingMode: types.AacCodingModeCodingMode20,
					SampleRate: aws.Int32(48_000),
				},
			},
		}},
	}
}

func thumbnailOutput() types.Output {
	return types.Output{
		NameModifier: aws.String(ThumbnailSuffix),
		Extension:    aws.String("jpg"),
		ContainerSettings: &types.ContainerSettings{
			Container: types.ContainerTypeRaw,
		},
		VideoDescription: &types.VideoDescription{
			Height: aws.Int32(720),
			CodecSettings: &types.VideoCodecSettings{
				Codec: types.VideoCodecFrameCapture,
				FrameCaptureSettings: &types.FrameCaptureSettings{
					FramerateNumerator:   aws.Int32(1),
					FramerateDenominator: aws.Int32(5),
					MaxCaptures:          aws.Int32(1),
					Quality:              aws.Int32(80),
				},
			},
		},
	}
}
